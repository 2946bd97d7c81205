package aws

import (
	"context"
	"os"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/sts"
	"go.uber.org/zap"
)

const kubernetesTokenPath = "/var/run/secrets/kubernetes.io/serviceaccount/token"

// LoadAWSConfig loads the default AWS config. Outside Kubernetes the shared
// profile from AWS_PROFILE (or "default") is used.
func LoadAWSConfig(ctx context.Context, regionOverride string) (aws.Config, error) {
	var options []func(*config.LoadOptions) error

	if !isInKubernetes() {
		options = append(options, config.WithSharedConfigProfile(getProfile()))
	}

	if regionOverride != "" {
		options = append(options, config.WithRegion(regionOverride))
	}

	return config.LoadDefaultConfig(ctx, options...)
}

func isInKubernetes() bool {
	_, err := os.Stat(kubernetesTokenPath)
	return err == nil
}

func getProfile() string {
	if profile := os.Getenv("AWS_PROFILE"); profile != "" {
		return profile
	}
	return "default"
}

// LogCallerIdentity logs which AWS principal the signer runs as. Failures are
// logged, not returned; KMS calls will surface real permission problems.
func LogCallerIdentity(ctx context.Context, cfg aws.Config, logger *zap.Logger) {
	out, err := sts.NewFromConfig(cfg).GetCallerIdentity(ctx, &sts.GetCallerIdentityInput{})
	if err != nil {
		logger.Sugar().Warnw("Failed to get AWS caller identity", "error", err)
		return
	}
	logger.Sugar().Infow("Using AWS identity",
		"account", aws.ToString(out.Account),
		"arn", aws.ToString(out.Arn),
		"region", cfg.Region,
	)
}
