package awsKmsProfileSigner

import (
	"context"
	"crypto/ecdsa"
	"encoding/asn1"
	"fmt"
	"math/big"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/kms"
	"github.com/aws/aws-sdk-go-v2/service/kms/types"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/web3-social/profile-keys-go/pkg/keys"
	"github.com/web3-social/profile-keys-go/pkg/message"
	"github.com/web3-social/profile-keys-go/pkg/signing"
)

// KMSAPI is the subset of the KMS client used here.
type KMSAPI interface {
	GetPublicKey(ctx context.Context, params *kms.GetPublicKeyInput, optFns ...func(*kms.Options)) (*kms.GetPublicKeyOutput, error)
	Sign(ctx context.Context, params *kms.SignInput, optFns ...func(*kms.Options)) (*kms.SignOutput, error)
	CreateKey(ctx context.Context, params *kms.CreateKeyInput, optFns ...func(*kms.Options)) (*kms.CreateKeyOutput, error)
	CreateAlias(ctx context.Context, params *kms.CreateAliasInput, optFns ...func(*kms.Options)) (*kms.CreateAliasOutput, error)
}

var _ KMSAPI = (*kms.Client)(nil)

// AWSKMSProfileSigner signs with an ECC_SECG_P256K1 key held in AWS KMS.
// The private key never leaves KMS; the public key is fetched once at
// construction.
type AWSKMSProfileSigner struct {
	logger    *zap.Logger
	kmsClient KMSAPI
	keyId     string
	publicKey *ecdsa.PublicKey
	address   common.Address
}

// NewAWSKMSProfileSigner builds a signer for keyId from an AWS config.
func NewAWSKMSProfileSigner(ctx context.Context, awsCfg aws.Config, keyId string, logger *zap.Logger) (*AWSKMSProfileSigner, error) {
	return NewAWSKMSProfileSignerWithClient(ctx, kms.NewFromConfig(awsCfg), keyId, logger)
}

// NewAWSKMSProfileSignerWithClient builds a signer around an existing client.
func NewAWSKMSProfileSignerWithClient(ctx context.Context, client KMSAPI, keyId string, logger *zap.Logger) (*AWSKMSProfileSigner, error) {
	pub, err := getPublicKey(ctx, client, keyId)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to get public key for key %s", keyId)
	}

	s := &AWSKMSProfileSigner{
		logger:    logger,
		kmsClient: client,
		keyId:     keyId,
		publicKey: pub,
		address:   keys.AddressOf(pub),
	}
	logger.Sugar().Infow("AWS KMS profile signer initialized", "keyId", keyId, "address", s.address.Hex())
	return s, nil
}

func (s *AWSKMSProfileSigner) Address() common.Address {
	return s.address
}

func (s *AWSKMSProfileSigner) PublicKey() *ecdsa.PublicKey {
	return s.publicKey
}

// SignMessage asks KMS to sign the EIP-191 digest of msg.
func (s *AWSKMSProfileSigner) SignMessage(ctx context.Context, msg message.CanonicalMessage) (signing.Signature, error) {
	return s.SignDigest(ctx, signing.Digest(msg))
}

// SignDigest signs a precomputed digest. KMS returns a DER (r, s) pair with
// no recovery id, so s is normalized to the lower half of the order and the
// recovery id is found by trial recovery against the known public key.
func (s *AWSKMSProfileSigner) SignDigest(ctx context.Context, digest common.Hash) (signing.Signature, error) {
	out, err := s.kmsClient.Sign(ctx, &kms.SignInput{
		KeyId:            aws.String(s.keyId),
		Message:          digest.Bytes(),
		SigningAlgorithm: types.SigningAlgorithmSpecEcdsaSha256,
		MessageType:      types.MessageTypeDigest,
	})
	if err != nil {
		return signing.Signature{}, errors.Wrapf(signing.ErrSigning, "kms sign: %v", err)
	}

	var der asn1EcSig
	if _, err := asn1.Unmarshal(out.Signature, &der); err != nil {
		return signing.Signature{}, errors.Wrapf(signing.ErrSigning, "failed to parse kms signature: %v", err)
	}

	r := new(big.Int).SetBytes(der.R.Bytes)
	sv := new(big.Int).SetBytes(der.S.Bytes)

	curveOrder := crypto.S256().Params().N
	halfOrder := new(big.Int).Rsh(curveOrder, 1)
	if sv.Cmp(halfOrder) > 0 {
		sv = new(big.Int).Sub(curveOrder, sv)
	}

	var raw signing.Signature
	r.FillBytes(raw[0:32])
	sv.FillBytes(raw[32:64])

	for recoveryId := byte(0); recoveryId < 2; recoveryId++ {
		raw[64] = 27 + recoveryId

		recovered, err := signing.RecoverDigest(digest, raw)
		if err != nil {
			s.logger.Debug("Recovery failed", zap.Uint8("recoveryId", recoveryId), zap.Error(err))
			continue
		}
		if recovered.X.Cmp(s.publicKey.X) == 0 && recovered.Y.Cmp(s.publicKey.Y) == 0 {
			return raw, nil
		}
	}

	return signing.Signature{}, errors.Wrap(signing.ErrSigning, "could not determine recovery id for kms signature")
}

// CreateProfileKey creates a new secp256k1 signing key in KMS, points
// alias/<aliasName> at it and returns its key id.
func CreateProfileKey(ctx context.Context, client KMSAPI, keyName, aliasName string) (string, error) {
	res, err := client.CreateKey(ctx, &kms.CreateKeyInput{
		KeyUsage:    types.KeyUsageTypeSignVerify,
		KeySpec:     types.KeySpecEccSecgP256k1,
		Description: aws.String(fmt.Sprintf("Profile signing key - %s", keyName)),
		Tags: []types.Tag{
			{TagKey: aws.String("Name"), TagValue: aws.String(keyName)},
			{TagKey: aws.String("Purpose"), TagValue: aws.String("profile-key")},
			{TagKey: aws.String("Curve"), TagValue: aws.String("secp256k1")},
		},
	})
	if err != nil {
		return "", fmt.Errorf("failed to create KMS key: %w", err)
	}
	keyId := aws.ToString(res.KeyMetadata.KeyId)

	if aliasName != "" {
		_, err = client.CreateAlias(ctx, &kms.CreateAliasInput{
			AliasName:   aws.String(fmt.Sprintf("alias/%s", aliasName)),
			TargetKeyId: aws.String(keyId),
		})
		if err != nil {
			return "", fmt.Errorf("failed to create key alias for %s: %w", keyId, err)
		}
	}
	return keyId, nil
}

func getPublicKey(ctx context.Context, client KMSAPI, keyId string) (*ecdsa.PublicKey, error) {
	out, err := client.GetPublicKey(ctx, &kms.GetPublicKeyInput{
		KeyId: aws.String(keyId),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to get public key: %w", err)
	}
	return parseECDSAPublicKey(out.PublicKey)
}

// parseECDSAPublicKey parses the DER SubjectPublicKeyInfo returned by KMS.
func parseECDSAPublicKey(derBytes []byte) (*ecdsa.PublicKey, error) {
	var spki asn1EcPublicKey
	if _, err := asn1.Unmarshal(derBytes, &spki); err != nil {
		return nil, fmt.Errorf("failed to parse ASN.1 public key: %w", err)
	}
	return keys.ParsePublicKey(spki.PublicKey.Bytes)
}

type asn1EcSig struct {
	R asn1.RawValue
	S asn1.RawValue
}

type asn1EcPublicKey struct {
	EcPublicKeyInfo asn1EcPublicKeyInfo
	PublicKey       asn1.BitString
}

type asn1EcPublicKeyInfo struct {
	Algorithm  asn1.ObjectIdentifier
	Parameters asn1.ObjectIdentifier
}
