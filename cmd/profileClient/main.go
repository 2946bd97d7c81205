package main

import (
	"log"
	"os"

	"github.com/urfave/cli/v2"

	"github.com/web3-social/profile-keys-go/pkg/config"
)

func main() {
	app := &cli.App{
		Name:  "profile-client",
		Usage: "Profile key client for binding, signing, posting and encrypting",
		Description: `A client for profile keys and the profile server.

Offline commands generate keys, sign canonical messages, recover signers and
encrypt or decrypt envelopes. Remote commands talk to a profile server to bind
contracts, submit sequenced posts and replies, and encrypt to a bound owner.`,
		Version: "1.0.0",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "server-url",
				Usage:   "Profile server base URL",
				Value:   "http://localhost:8080",
				EnvVars: []string{config.EnvProfileServerURL},
			},
			&cli.StringFlag{
				Name:    "signer-type",
				Usage:   "Signer backend: local, keystore or aws-kms",
				Value:   string(config.SignerType_Local),
				EnvVars: []string{config.EnvProfileSignerType},
			},
			&cli.StringFlag{
				Name:    "private-key",
				Usage:   "Hex private key for the local signer",
				EnvVars: []string{config.EnvProfilePrivateKey},
			},
			&cli.StringFlag{
				Name:    "keystore-path",
				Usage:   "Keystore file for the keystore signer",
				EnvVars: []string{config.EnvProfileKeystorePath},
			},
			&cli.StringFlag{
				Name:    "keystore-password",
				Usage:   "Keystore password",
				EnvVars: []string{config.EnvProfileKeystorePass},
			},
			&cli.StringFlag{
				Name:    "aws-kms-key-id",
				Usage:   "KMS key id or alias for the aws-kms signer",
				EnvVars: []string{config.EnvProfileAWSKeyID},
			},
			&cli.StringFlag{
				Name:    "aws-region",
				Usage:   "AWS region for the aws-kms signer",
				EnvVars: []string{config.EnvProfileAWSRegion},
			},
			&cli.BoolFlag{
				Name:    "debug",
				Usage:   "Enable debug logging",
				EnvVars: []string{config.EnvProfileDebug},
			},
		},
		Commands: []*cli.Command{
			{
				Name:  "keygen",
				Usage: "Generate a new profile key",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:  "keystore-out",
						Usage: "Write the key to this keystore file instead of printing it",
					},
				},
				Action: keygenCommand,
			},
			{
				Name:   "address",
				Usage:  "Print the signer's address",
				Action: addressCommand,
			},
			{
				Name:   "pubkey",
				Usage:  "Print the signer's uncompressed public key",
				Action: pubkeyCommand,
			},
			{
				Name:  "sign-binding",
				Usage: "Sign the binding message for a contract",
				Flags: []cli.Flag{
					contractFlag(),
				},
				Action: signBindingCommand,
			},
			{
				Name:  "sign-post",
				Usage: "Sign a post at the given nonce",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "nonce", Usage: "Actor nonce", Required: true},
					&cli.StringFlag{Name: "content", Usage: "Post content", Required: true},
				},
				Action: signPostCommand,
			},
			{
				Name:  "sign-reply",
				Usage: "Sign a reply to another actor's post",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "nonce", Usage: "Replier nonce", Required: true},
					&cli.StringFlag{Name: "author", Usage: "Post author address", Required: true},
					&cli.StringFlag{Name: "post-nonce", Usage: "Nonce of the post being replied to", Required: true},
					&cli.StringFlag{Name: "content", Usage: "Reply content", Required: true},
				},
				Action: signReplyCommand,
			},
			{
				Name:  "recover",
				Usage: "Recover the signer of a canonical message",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "message", Usage: "Canonical message as hex", Required: true},
					&cli.StringFlag{Name: "signature", Usage: "65-byte signature as hex", Required: true},
				},
				Action: recoverCommand,
			},
			{
				Name:  "encrypt",
				Usage: "Encrypt data to a public key",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "pubkey", Usage: "Recipient uncompressed public key as hex", Required: true},
					&cli.StringFlag{Name: "data", Usage: "Data to encrypt (as string)", Required: true},
					hexFlag(),
				},
				Action: encryptCommand,
			},
			{
				Name:  "decrypt",
				Usage: "Decrypt an envelope with the local or keystore key",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "envelope", Usage: "Envelope as hex", Required: true},
				},
				Action: decryptCommand,
			},
			{
				Name:  "kms-create-key",
				Usage: "Create a secp256k1 signing key in AWS KMS",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "name", Usage: "Key name tag", Required: true},
					&cli.StringFlag{Name: "alias", Usage: "Alias to point at the new key"},
				},
				Action: kmsCreateKeyCommand,
			},
			{
				Name:  "bind",
				Usage: "Bind a contract to the signer's address on the server",
				Flags: []cli.Flag{
					contractFlag(),
				},
				Action: bindCommand,
			},
			{
				Name:  "binding",
				Usage: "Show the binding for a contract",
				Flags: []cli.Flag{
					contractFlag(),
				},
				Action: bindingCommand,
			},
			{
				Name:  "authorized",
				Usage: "Check whether an address, or the signer of a message, owns a contract",
				Flags: []cli.Flag{
					contractFlag(),
					&cli.StringFlag{Name: "signer", Usage: "Address to check"},
					&cli.StringFlag{Name: "message", Usage: "Canonical message as hex; checks its signer instead of --signer"},
					&cli.StringFlag{Name: "signature", Usage: "Signature over --message as hex"},
				},
				Action: authorizedCommand,
			},
			{
				Name:  "nonce",
				Usage: "Show the next nonce for an actor",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "actor", Usage: "Actor address (defaults to the signer)"},
				},
				Action: nonceCommand,
			},
			{
				Name:  "post",
				Usage: "Publish a post at the signer's next nonce",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "content", Usage: "Post content", Required: true},
				},
				Action: postCommand,
			},
			{
				Name:  "reply",
				Usage: "Reply to a post at the signer's next nonce",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "author", Usage: "Post author address", Required: true},
					&cli.StringFlag{Name: "post-nonce", Usage: "Nonce of the post being replied to", Required: true},
					&cli.StringFlag{Name: "content", Usage: "Reply content", Required: true},
				},
				Action: replyCommand,
			},
			{
				Name:  "actions",
				Usage: "List authorized actions for an actor",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "actor", Usage: "Actor address (defaults to the signer)"},
				},
				Action: actionsCommand,
			},
			{
				Name:  "send",
				Usage: "Encrypt data locally to the owner bound to a contract",
				Flags: []cli.Flag{
					contractFlag(),
					&cli.StringFlag{Name: "data", Usage: "Data to encrypt (as string)", Required: true},
					hexFlag(),
				},
				Action: sendCommand,
			},
		},
	}

	if err := app.Run(os.Args); err != nil {
		log.Fatal(err)
	}
}

func contractFlag() cli.Flag {
	return &cli.StringFlag{
		Name:    "contract",
		Usage:   "Profile contract address",
		EnvVars: []string{config.EnvProfileContractAddress},
	}
}

func hexFlag() cli.Flag {
	return &cli.BoolFlag{
		Name:  "hex",
		Usage: "Treat --data as 0x-prefixed hex bytes",
	}
}
