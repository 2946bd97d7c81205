package awsKmsProfileSigner

import (
	"context"
	"crypto/ecdsa"
	"encoding/asn1"
	"errors"
	"math/big"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/kms"
	"github.com/aws/aws-sdk-go-v2/service/kms/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/web3-social/profile-keys-go/pkg/keys"
	"github.com/web3-social/profile-keys-go/pkg/logger"
	"github.com/web3-social/profile-keys-go/pkg/message"
	"github.com/web3-social/profile-keys-go/pkg/profileSigner"
	"github.com/web3-social/profile-keys-go/pkg/signing"
)

var (
	oidPublicKeyECDSA = asn1.ObjectIdentifier{1, 2, 840, 10045, 2, 1}
	oidSecp256k1      = asn1.ObjectIdentifier{1, 3, 132, 0, 10}
)

// fakeKMS signs with a local key and answers in the DER formats KMS uses.
type fakeKMS struct {
	key      *ecdsa.PrivateKey
	highS    bool
	signErr  error
	aliases  map[string]string
	lastSign *kms.SignInput
}

func (f *fakeKMS) GetPublicKey(_ context.Context, _ *kms.GetPublicKeyInput, _ ...func(*kms.Options)) (*kms.GetPublicKeyOutput, error) {
	pub := keys.PublicKeyBytes(keys.PublicOf(f.key))
	der, err := asn1.Marshal(asn1EcPublicKey{
		EcPublicKeyInfo: asn1EcPublicKeyInfo{Algorithm: oidPublicKeyECDSA, Parameters: oidSecp256k1},
		PublicKey:       asn1.BitString{Bytes: pub, BitLength: len(pub) * 8},
	})
	if err != nil {
		return nil, err
	}
	return &kms.GetPublicKeyOutput{PublicKey: der}, nil
}

func (f *fakeKMS) Sign(_ context.Context, in *kms.SignInput, _ ...func(*kms.Options)) (*kms.SignOutput, error) {
	f.lastSign = in
	if f.signErr != nil {
		return nil, f.signErr
	}
	raw, err := crypto.Sign(in.Message, f.key)
	if err != nil {
		return nil, err
	}
	r := new(big.Int).SetBytes(raw[:32])
	s := new(big.Int).SetBytes(raw[32:64])
	if f.highS {
		s = new(big.Int).Sub(crypto.S256().Params().N, s)
	}
	der, err := asn1.Marshal(struct{ R, S *big.Int }{r, s})
	if err != nil {
		return nil, err
	}
	return &kms.SignOutput{Signature: der}, nil
}

func (f *fakeKMS) CreateKey(_ context.Context, _ *kms.CreateKeyInput, _ ...func(*kms.Options)) (*kms.CreateKeyOutput, error) {
	return &kms.CreateKeyOutput{KeyMetadata: &types.KeyMetadata{KeyId: aws.String("key-1234")}}, nil
}

func (f *fakeKMS) CreateAlias(_ context.Context, in *kms.CreateAliasInput, _ ...func(*kms.Options)) (*kms.CreateAliasOutput, error) {
	if f.aliases == nil {
		f.aliases = map[string]string{}
	}
	f.aliases[aws.ToString(in.AliasName)] = aws.ToString(in.TargetKeyId)
	return &kms.CreateAliasOutput{}, nil
}

func newFake(t *testing.T) *fakeKMS {
	key, err := keys.Generate()
	require.NoError(t, err)
	return &fakeKMS{key: key}
}

func Test_AWSKMSProfileSigner_SignMessage(t *testing.T) {
	var _ profileSigner.IProfileSigner = (*AWSKMSProfileSigner)(nil)

	for _, highS := range []bool{false, true} {
		fake := newFake(t)
		fake.highS = highS

		s, err := NewAWSKMSProfileSignerWithClient(context.Background(), fake, "key-1234", logger.NewTestLogger())
		require.NoError(t, err)
		assert.Equal(t, keys.AddressOf(keys.PublicOf(fake.key)), s.Address())

		for i := 0; i < 8; i++ {
			msg := message.BuildAction(s.Address(), nil, s.Address(), nil, []byte{byte(i)})
			sig, err := s.SignMessage(context.Background(), msg)
			require.NoError(t, err)

			assert.Equal(t, types.MessageTypeDigest, fake.lastSign.MessageType)
			assert.Equal(t, signing.Digest(msg).Bytes(), fake.lastSign.Message)

			recovered, err := signing.RecoverAddress(msg, sig)
			require.NoError(t, err, "highS=%v", highS)
			assert.Equal(t, s.Address(), recovered)
		}
	}
}

func Test_AWSKMSProfileSigner_SignError(t *testing.T) {
	fake := newFake(t)
	s, err := NewAWSKMSProfileSignerWithClient(context.Background(), fake, "key-1234", logger.NewTestLogger())
	require.NoError(t, err)

	fake.signErr = errors.New("throttled")
	_, err = s.SignMessage(context.Background(), message.BuildBinding(s.Address(), s.Address()))
	assert.ErrorIs(t, err, signing.ErrSigning)
}

func Test_CreateProfileKey(t *testing.T) {
	fake := newFake(t)
	keyId, err := CreateProfileKey(context.Background(), fake, "alice", "alice-profile")
	require.NoError(t, err)
	assert.Equal(t, "key-1234", keyId)
	assert.Equal(t, "key-1234", fake.aliases["alias/alice-profile"])
}

func Test_parseECDSAPublicKey_Invalid(t *testing.T) {
	_, err := parseECDSAPublicKey([]byte{0x30, 0x01})
	assert.Error(t, err)
}
