package main

import (
	"crypto/ecdsa"
	"fmt"

	"github.com/urfave/cli/v2"
	"go.uber.org/zap"

	"github.com/web3-social/profile-keys-go/internal/aws"
	"github.com/web3-social/profile-keys-go/pkg/config"
	"github.com/web3-social/profile-keys-go/pkg/keys"
	"github.com/web3-social/profile-keys-go/pkg/logger"
	"github.com/web3-social/profile-keys-go/pkg/profileClient"
	"github.com/web3-social/profile-keys-go/pkg/profileSigner"
	"github.com/web3-social/profile-keys-go/pkg/profileSigner/awsKmsProfileSigner"
	"github.com/web3-social/profile-keys-go/pkg/profileSigner/inMemoryProfileSigner"
)

func createLogger(c *cli.Context) (*zap.Logger, error) {
	return logger.NewLogger(&logger.LoggerConfig{Debug: c.Bool("debug")})
}

func createClient(c *cli.Context) (*profileClient.Client, error) {
	l, err := createLogger(c)
	if err != nil {
		return nil, fmt.Errorf("failed to create logger: %w", err)
	}
	return profileClient.NewClient(&profileClient.ClientConfig{
		BaseURL: c.String("server-url"),
		Logger:  l,
	})
}

func signerConfig(c *cli.Context) *config.SignerConfig {
	return &config.SignerConfig{
		Type:             config.SignerType(c.String("signer-type")),
		PrivateKey:       c.String("private-key"),
		KeystorePath:     c.String("keystore-path"),
		KeystorePassword: c.String("keystore-password"),
		AWSKeyID:         c.String("aws-kms-key-id"),
		AWSRegion:        c.String("aws-region"),
	}
}

func createSigner(c *cli.Context) (profileSigner.IProfileSigner, error) {
	cfg := signerConfig(c)
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid signer configuration: %w", err)
	}

	l, err := createLogger(c)
	if err != nil {
		return nil, fmt.Errorf("failed to create logger: %w", err)
	}

	switch cfg.Type {
	case config.SignerType_Local:
		s, err := inMemoryProfileSigner.NewInMemoryProfileSignerFromHex(cfg.PrivateKey, l)
		if err != nil {
			return nil, err
		}
		return s, nil
	case config.SignerType_Keystore:
		s, err := inMemoryProfileSigner.NewInMemoryProfileSignerFromKeystore(cfg.KeystorePath, cfg.KeystorePassword, l)
		if err != nil {
			return nil, err
		}
		return s, nil
	case config.SignerType_AWSKMS:
		awsCfg, err := aws.LoadAWSConfig(c.Context, cfg.AWSRegion)
		if err != nil {
			return nil, fmt.Errorf("failed to load AWS config: %w", err)
		}
		aws.LogCallerIdentity(c.Context, awsCfg, l)
		s, err := awsKmsProfileSigner.NewAWSKMSProfileSigner(c.Context, awsCfg, cfg.AWSKeyID, l)
		if err != nil {
			return nil, err
		}
		return s, nil
	default:
		return nil, fmt.Errorf("unsupported signer type: %s", cfg.Type)
	}
}

// loadPrivateKey returns the raw key for commands that need it directly.
// KMS keys cannot be exported, so only local and keystore signers qualify.
func loadPrivateKey(c *cli.Context) (*ecdsa.PrivateKey, error) {
	cfg := signerConfig(c)
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid signer configuration: %w", err)
	}

	switch cfg.Type {
	case config.SignerType_Local:
		return keys.FromHex(cfg.PrivateKey)
	case config.SignerType_Keystore:
		return keys.LoadKeystore(cfg.KeystorePath, cfg.KeystorePassword)
	default:
		return nil, fmt.Errorf("signer type %s does not expose a private key", cfg.Type)
	}
}
