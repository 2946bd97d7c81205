package main

import (
	"encoding/json"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/service/kms"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/urfave/cli/v2"

	"github.com/web3-social/profile-keys-go/internal/aws"
	"github.com/web3-social/profile-keys-go/pkg/encryption"
	"github.com/web3-social/profile-keys-go/pkg/keys"
	"github.com/web3-social/profile-keys-go/pkg/message"
	"github.com/web3-social/profile-keys-go/pkg/profileSigner"
	"github.com/web3-social/profile-keys-go/pkg/profileSigner/awsKmsProfileSigner"
	"github.com/web3-social/profile-keys-go/pkg/signing"
)

func keygenCommand(c *cli.Context) error {
	priv, err := keys.Generate()
	if err != nil {
		return fmt.Errorf("failed to generate key: %w", err)
	}
	address := keys.AddressOf(keys.PublicOf(priv))

	if out := c.String("keystore-out"); out != "" {
		if err := keys.SaveKeystore(out, priv, c.String("keystore-password")); err != nil {
			return fmt.Errorf("failed to write keystore: %w", err)
		}
		fmt.Printf("✅ Keystore for %s written to: %s\n", address.Hex(), out)
		return nil
	}

	fmt.Printf("Address:     %s\n", address.Hex())
	fmt.Printf("Public key:  %s\n", hexutil.Encode(keys.PublicKeyBytes(keys.PublicOf(priv))))
	fmt.Printf("Private key: %s\n", keys.ToHex(priv))
	return nil
}

func addressCommand(c *cli.Context) error {
	s, err := createSigner(c)
	if err != nil {
		return err
	}
	fmt.Println(s.Address().Hex())
	return nil
}

func pubkeyCommand(c *cli.Context) error {
	s, err := createSigner(c)
	if err != nil {
		return err
	}
	fmt.Println(hexutil.Encode(keys.PublicKeyBytes(s.PublicKey())))
	return nil
}

func signBindingCommand(c *cli.Context) error {
	contract, err := message.ParseAddress(c.String("contract"))
	if err != nil {
		return fmt.Errorf("invalid contract: %w", err)
	}
	s, err := createSigner(c)
	if err != nil {
		return err
	}
	return signAndPrint(c, s, message.BuildBinding(contract, s.Address()))
}

func signPostCommand(c *cli.Context) error {
	nonce, err := message.ParseNonce(c.String("nonce"))
	if err != nil {
		return fmt.Errorf("invalid nonce: %w", err)
	}
	s, err := createSigner(c)
	if err != nil {
		return err
	}
	actor := s.Address()
	return signAndPrint(c, s, message.BuildAction(actor, nonce, actor, nonce, []byte(c.String("content"))))
}

func signReplyCommand(c *cli.Context) error {
	nonce, err := message.ParseNonce(c.String("nonce"))
	if err != nil {
		return fmt.Errorf("invalid nonce: %w", err)
	}
	author, err := message.ParseAddress(c.String("author"))
	if err != nil {
		return fmt.Errorf("invalid author: %w", err)
	}
	postNonce, err := message.ParseNonce(c.String("post-nonce"))
	if err != nil {
		return fmt.Errorf("invalid post nonce: %w", err)
	}
	s, err := createSigner(c)
	if err != nil {
		return err
	}
	return signAndPrint(c, s, message.BuildAction(s.Address(), nonce, author, postNonce, []byte(c.String("content"))))
}

func signAndPrint(c *cli.Context, s profileSigner.IProfileSigner, msg message.CanonicalMessage) error {
	signed, err := profileSigner.CreateSignedMessage(c.Context, s, msg)
	if err != nil {
		return fmt.Errorf("failed to sign message: %w", err)
	}
	return printJSON(signed)
}

func recoverCommand(c *cli.Context) error {
	msg, err := message.DecodeMessage(c.String("message"))
	if err != nil {
		return fmt.Errorf("invalid message: %w", err)
	}
	sig, err := signing.SignatureFromHex(c.String("signature"))
	if err != nil {
		return fmt.Errorf("invalid signature: %w", err)
	}
	pub, err := signing.Recover(msg, sig)
	if err != nil {
		return err
	}
	fmt.Printf("Signer:     %s\n", keys.AddressOf(pub).Hex())
	fmt.Printf("Public key: %s\n", hexutil.Encode(keys.PublicKeyBytes(pub)))
	return nil
}

func encryptCommand(c *cli.Context) error {
	pub, err := keys.PublicKeyFromHex(c.String("pubkey"))
	if err != nil {
		return fmt.Errorf("invalid public key: %w", err)
	}
	data, err := payloadBytes(c)
	if err != nil {
		return err
	}
	env, err := encryption.Encrypt(pub, data)
	if err != nil {
		return fmt.Errorf("failed to encrypt: %w", err)
	}
	fmt.Printf("🔐 Encrypted for %s\n", keys.AddressOf(pub).Hex())
	fmt.Println(env.Hex())
	return nil
}

func decryptCommand(c *cli.Context) error {
	priv, err := loadPrivateKey(c)
	if err != nil {
		return err
	}
	env, err := encryption.CipherEnvelopeFromHex(c.String("envelope"))
	if err != nil {
		return err
	}
	plaintext, err := encryption.Decrypt(priv, env)
	if err != nil {
		return err
	}
	fmt.Printf("🔓 Decrypted data: %s\n", string(plaintext))
	return nil
}

func kmsCreateKeyCommand(c *cli.Context) error {
	l, err := createLogger(c)
	if err != nil {
		return err
	}
	awsCfg, err := aws.LoadAWSConfig(c.Context, c.String("aws-region"))
	if err != nil {
		return fmt.Errorf("failed to load AWS config: %w", err)
	}
	aws.LogCallerIdentity(c.Context, awsCfg, l)

	keyId, err := awsKmsProfileSigner.CreateProfileKey(c.Context, kms.NewFromConfig(awsCfg), c.String("name"), c.String("alias"))
	if err != nil {
		return err
	}
	signer, err := awsKmsProfileSigner.NewAWSKMSProfileSigner(c.Context, awsCfg, keyId, l)
	if err != nil {
		return err
	}
	fmt.Printf("✅ Created KMS key %s\n", keyId)
	fmt.Printf("Address: %s\n", signer.Address().Hex())
	return nil
}

func bindCommand(c *cli.Context) error {
	contract, err := message.ParseAddress(c.String("contract"))
	if err != nil {
		return fmt.Errorf("invalid contract: %w", err)
	}
	s, err := createSigner(c)
	if err != nil {
		return err
	}
	client, err := createClient(c)
	if err != nil {
		return err
	}
	b, err := client.BindWithSigner(c.Context, s, contract)
	if err != nil {
		return err
	}
	fmt.Printf("✅ Bound %s to %s\n", b.Contract.Hex(), b.Owner.Hex())
	return nil
}

func bindingCommand(c *cli.Context) error {
	contract, err := message.ParseAddress(c.String("contract"))
	if err != nil {
		return fmt.Errorf("invalid contract: %w", err)
	}
	client, err := createClient(c)
	if err != nil {
		return err
	}
	b, err := client.GetBinding(c.Context, contract)
	if err != nil {
		return err
	}
	return printJSON(b)
}

func authorizedCommand(c *cli.Context) error {
	contract, err := message.ParseAddress(c.String("contract"))
	if err != nil {
		return fmt.Errorf("invalid contract: %w", err)
	}
	client, err := createClient(c)
	if err != nil {
		return err
	}

	if c.String("message") != "" {
		msg, err := message.DecodeMessage(c.String("message"))
		if err != nil {
			return fmt.Errorf("invalid message: %w", err)
		}
		sig, err := signing.SignatureFromHex(c.String("signature"))
		if err != nil {
			return fmt.Errorf("invalid signature: %w", err)
		}
		signer, ok, err := client.AuthorizeSigned(c.Context, contract, msg, sig)
		if err != nil {
			return err
		}
		fmt.Printf("Signer:     %s\n", signer.Hex())
		fmt.Printf("Authorized: %t\n", ok)
		return nil
	}

	signer, err := message.ParseAddress(c.String("signer"))
	if err != nil {
		return fmt.Errorf("invalid signer: %w", err)
	}
	ok, err := client.IsAuthorized(c.Context, contract, signer)
	if err != nil {
		return err
	}
	fmt.Println(ok)
	return nil
}

func nonceCommand(c *cli.Context) error {
	actor, err := actorOrSigner(c)
	if err != nil {
		return err
	}
	client, err := createClient(c)
	if err != nil {
		return err
	}
	nonce, err := client.GetNonce(c.Context, actor)
	if err != nil {
		return err
	}
	fmt.Println(nonce.Dec())
	return nil
}

func postCommand(c *cli.Context) error {
	s, err := createSigner(c)
	if err != nil {
		return err
	}
	client, err := createClient(c)
	if err != nil {
		return err
	}
	resp, err := client.PostWithSigner(c.Context, s, c.String("content"))
	if err != nil {
		return err
	}
	return printJSON(resp)
}

func replyCommand(c *cli.Context) error {
	author, err := message.ParseAddress(c.String("author"))
	if err != nil {
		return fmt.Errorf("invalid author: %w", err)
	}
	postNonce, err := message.ParseNonce(c.String("post-nonce"))
	if err != nil {
		return fmt.Errorf("invalid post nonce: %w", err)
	}
	s, err := createSigner(c)
	if err != nil {
		return err
	}
	client, err := createClient(c)
	if err != nil {
		return err
	}
	resp, err := client.ReplyWithSigner(c.Context, s, author, postNonce, c.String("content"))
	if err != nil {
		return err
	}
	return printJSON(resp)
}

func actionsCommand(c *cli.Context) error {
	actor, err := actorOrSigner(c)
	if err != nil {
		return err
	}
	client, err := createClient(c)
	if err != nil {
		return err
	}
	actions, err := client.ListActions(c.Context, actor)
	if err != nil {
		return err
	}
	return printJSON(actions)
}

func sendCommand(c *cli.Context) error {
	contract, err := message.ParseAddress(c.String("contract"))
	if err != nil {
		return fmt.Errorf("invalid contract: %w", err)
	}
	client, err := createClient(c)
	if err != nil {
		return err
	}
	data, err := payloadBytes(c)
	if err != nil {
		return err
	}
	env, recipient, err := client.EncryptTo(c.Context, contract, data)
	if err != nil {
		return err
	}
	fmt.Printf("🔐 Encrypted for owner %s\n", recipient.Hex())
	fmt.Println(env.Hex())
	return nil
}

func actorOrSigner(c *cli.Context) (common.Address, error) {
	if raw := c.String("actor"); raw != "" {
		actor, err := message.ParseAddress(raw)
		if err != nil {
			return common.Address{}, fmt.Errorf("invalid actor: %w", err)
		}
		return actor, nil
	}
	s, err := createSigner(c)
	if err != nil {
		return common.Address{}, err
	}
	return s.Address(), nil
}

// payloadBytes reads --data, hex decoded when --hex is set.
func payloadBytes(c *cli.Context) ([]byte, error) {
	if !c.Bool("hex") {
		return []byte(c.String("data")), nil
	}
	data, err := hexutil.Decode(c.String("data"))
	if err != nil {
		return nil, fmt.Errorf("invalid hex data: %w", err)
	}
	return data, nil
}

func printJSON(v interface{}) error {
	out, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(out))
	return nil
}
