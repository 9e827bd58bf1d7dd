// Package awsaccount mints administrator credentials inside AWS organization
// sub-accounts.
package awsaccount

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/iam"
	iamtypes "github.com/aws/aws-sdk-go-v2/service/iam/types"
	"github.com/aws/aws-sdk-go-v2/service/organizations"
	"github.com/aws/aws-sdk-go-v2/service/sts"
	"github.com/glueops/tools-api/pkg/config"
	"github.com/glueops/tools-api/pkg/metrics"
	"github.com/gravitational/trace"
	"github.com/sirupsen/logrus"
)

// OrganizationsAPI is the subset of the Organizations client used here.
type OrganizationsAPI interface {
	DescribeOrganization(ctx context.Context, in *organizations.DescribeOrganizationInput, optFns ...func(*organizations.Options)) (*organizations.DescribeOrganizationOutput, error)
	ListAccounts(ctx context.Context, in *organizations.ListAccountsInput, optFns ...func(*organizations.Options)) (*organizations.ListAccountsOutput, error)
}

// STSAPI is the subset of the STS client used here.
type STSAPI interface {
	GetCallerIdentity(ctx context.Context, in *sts.GetCallerIdentityInput, optFns ...func(*sts.Options)) (*sts.GetCallerIdentityOutput, error)
	AssumeRole(ctx context.Context, in *sts.AssumeRoleInput, optFns ...func(*sts.Options)) (*sts.AssumeRoleOutput, error)
}

// IAMAPI is the subset of the IAM client used inside a sub-account.
type IAMAPI interface {
	CreateUser(ctx context.Context, in *iam.CreateUserInput, optFns ...func(*iam.Options)) (*iam.CreateUserOutput, error)
	AttachUserPolicy(ctx context.Context, in *iam.AttachUserPolicyInput, optFns ...func(*iam.Options)) (*iam.AttachUserPolicyOutput, error)
	CreateAccessKey(ctx context.Context, in *iam.CreateAccessKeyInput, optFns ...func(*iam.Options)) (*iam.CreateAccessKeyOutput, error)
	CreateRole(ctx context.Context, in *iam.CreateRoleInput, optFns ...func(*iam.Options)) (*iam.CreateRoleOutput, error)
	AttachRolePolicy(ctx context.Context, in *iam.AttachRolePolicyInput, optFns ...func(*iam.Options)) (*iam.AttachRolePolicyOutput, error)
	GetRole(ctx context.Context, in *iam.GetRoleInput, optFns ...func(*iam.Options)) (*iam.GetRoleOutput, error)
}

// IAMFactory builds an IAM client that acts with the given credentials.
type IAMFactory func(creds aws.Credentials) IAMAPI

// Grant is the result of minting credentials in a sub-account.
type Grant struct {
	AccountID   string
	AccountName string
	AccessKeyID string
	RoleARN     string
	Snippet     string
}

// Minter mints sub-account credentials.
type Minter interface {
	Mint(ctx context.Context, subAccountName string) (*Grant, error)
}

// minter implements Minter.
type minter struct {
	log     logrus.FieldLogger
	cfg     config.AWSConfig
	orgs    OrganizationsAPI
	sts     STSAPI
	iamFor  IAMFactory
	metrics *metrics.Metrics
}

// Ensure minter implements Minter.
var _ Minter = (*minter)(nil)

// NewMinter creates a Minter from explicit clients.
func NewMinter(
	log logrus.FieldLogger,
	cfg config.AWSConfig,
	orgs OrganizationsAPI,
	stsClient STSAPI,
	iamFor IAMFactory,
	m *metrics.Metrics,
) Minter {
	return &minter{
		log:     log.WithField("component", "awsaccount"),
		cfg:     cfg,
		orgs:    orgs,
		sts:     stsClient,
		iamFor:  iamFor,
		metrics: m,
	}
}

// NewMinterFromConfig loads AWS configuration for the organization root
// account and builds the SDK clients.
func NewMinterFromConfig(ctx context.Context, log logrus.FieldLogger, cfg config.AWSConfig, m *metrics.Metrics) (Minter, error) {
	loadOpts := []func(*awsconfig.LoadOptions) error{
		awsconfig.WithRegion(cfg.Region),
	}

	if cfg.AccessKeyID != "" {
		loadOpts = append(loadOpts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		))
	}

	base, err := awsconfig.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, trace.Wrap(err, "loading AWS config")
	}

	iamFor := func(creds aws.Credentials) IAMAPI {
		sub := base.Copy()
		sub.Credentials = aws.NewCredentialsCache(credentials.NewStaticCredentialsProvider(
			creds.AccessKeyID, creds.SecretAccessKey, creds.SessionToken,
		))

		return iam.NewFromConfig(sub)
	}

	return NewMinter(log, cfg, organizations.NewFromConfig(base), sts.NewFromConfig(base), iamFor, m), nil
}

// Mint verifies the caller is the organization root, assumes the access role
// in the named sub-account, ensures the deployment user and captain role exist
// and returns a fresh access key for the user.
func (m *minter) Mint(ctx context.Context, subAccountName string) (*Grant, error) {
	name := strings.TrimSpace(subAccountName)
	if name == "" {
		return nil, trace.BadParameter("aws_sub_account_name is required")
	}

	log := m.log.WithField("account_name", name)

	if err := m.checkRootAccount(ctx); err != nil {
		return nil, err
	}

	accountID, err := m.findAccount(ctx, name)
	if err != nil {
		return nil, err
	}

	log = log.WithField("account_id", accountID)

	roleARN := fmt.Sprintf("arn:aws:iam::%s:role/%s", accountID, m.cfg.AssumeRoleName)

	assumed, err := m.sts.AssumeRole(ctx, &sts.AssumeRoleInput{
		RoleArn:         aws.String(roleARN),
		RoleSessionName: aws.String(m.cfg.SessionName),
	})
	m.recordVendorCall("assume_role", err)

	if err != nil {
		return nil, trace.Wrap(err, "assuming %s", roleARN)
	}

	if assumed.Credentials == nil {
		return nil, trace.Errorf("assume role %s returned no credentials", roleARN)
	}

	client := m.iamFor(aws.Credentials{
		AccessKeyID:     aws.ToString(assumed.Credentials.AccessKeyId),
		SecretAccessKey: aws.ToString(assumed.Credentials.SecretAccessKey),
		SessionToken:    aws.ToString(assumed.Credentials.SessionToken),
		Source:          "AssumeRole",
	})

	accessKeyID, secretAccessKey, err := m.ensureUser(ctx, client)
	if err != nil {
		return nil, err
	}

	captainRoleARN, err := m.ensureRole(ctx, client, accountID)
	if err != nil {
		return nil, err
	}

	if m.metrics != nil {
		m.metrics.RecordCredentialsMinted()
	}

	log.WithField("role_arn", captainRoleARN).Info("Minted sub-account credentials")

	return &Grant{
		AccountID:   accountID,
		AccountName: name,
		AccessKeyID: accessKeyID,
		RoleARN:     captainRoleARN,
		Snippet:     Snippet(name, accessKeyID, secretAccessKey, m.cfg.CredentialRegion, captainRoleARN),
	}, nil
}

func (m *minter) checkRootAccount(ctx context.Context) error {
	org, err := m.orgs.DescribeOrganization(ctx, &organizations.DescribeOrganizationInput{})
	m.recordVendorCall("describe_organization", err)

	if err != nil {
		return trace.Wrap(err, "describing organization")
	}

	identity, err := m.sts.GetCallerIdentity(ctx, &sts.GetCallerIdentityInput{})
	m.recordVendorCall("get_caller_identity", err)

	if err != nil {
		return trace.Wrap(err, "reading caller identity")
	}

	var rootID string
	if org.Organization != nil {
		rootID = aws.ToString(org.Organization.MasterAccountId)
	}

	if rootID == "" || aws.ToString(identity.Account) != rootID {
		return trace.BadParameter("This is not the root account. Exiting.")
	}

	return nil
}

// findAccount resolves an account name to its id across all pages.
func (m *minter) findAccount(ctx context.Context, name string) (string, error) {
	var nextToken *string

	for {
		out, err := m.orgs.ListAccounts(ctx, &organizations.ListAccountsInput{NextToken: nextToken})
		m.recordVendorCall("list_accounts", err)

		if err != nil {
			return "", trace.Wrap(err, "listing organization accounts")
		}

		for _, acct := range out.Accounts {
			if aws.ToString(acct.Name) == name {
				return aws.ToString(acct.Id), nil
			}
		}

		if aws.ToString(out.NextToken) == "" {
			break
		}

		nextToken = out.NextToken
	}

	return "", trace.NotFound("Account not found.")
}

func (m *minter) ensureUser(ctx context.Context, client IAMAPI) (string, string, error) {
	userName := aws.String(m.cfg.IAMUserName)

	_, err := client.CreateUser(ctx, &iam.CreateUserInput{UserName: userName})
	m.recordVendorCall("create_user", err)

	switch {
	case alreadyExists(err):
		m.log.WithField("user", m.cfg.IAMUserName).Debug("IAM user already exists")
	case err != nil:
		return "", "", trace.Wrap(err, "creating IAM user %s", m.cfg.IAMUserName)
	default:
		_, err = client.AttachUserPolicy(ctx, &iam.AttachUserPolicyInput{
			UserName:  userName,
			PolicyArn: aws.String(m.cfg.PolicyARN),
		})
		m.recordVendorCall("attach_user_policy", err)

		if err != nil && !alreadyExists(err) {
			return "", "", trace.Wrap(err, "attaching policy to IAM user %s", m.cfg.IAMUserName)
		}
	}

	key, err := client.CreateAccessKey(ctx, &iam.CreateAccessKeyInput{UserName: userName})
	m.recordVendorCall("create_access_key", err)

	if err != nil {
		return "", "", trace.Wrap(err, "creating access key for %s", m.cfg.IAMUserName)
	}

	if key.AccessKey == nil {
		return "", "", trace.Errorf("create access key for %s returned no key", m.cfg.IAMUserName)
	}

	return aws.ToString(key.AccessKey.AccessKeyId), aws.ToString(key.AccessKey.SecretAccessKey), nil
}

func (m *minter) ensureRole(ctx context.Context, client IAMAPI, accountID string) (string, error) {
	roleName := aws.String(m.cfg.IAMRoleName)

	trust, err := TrustPolicy(accountID)
	if err != nil {
		return "", err
	}

	_, err = client.CreateRole(ctx, &iam.CreateRoleInput{
		RoleName:                 roleName,
		AssumeRolePolicyDocument: aws.String(trust),
	})
	m.recordVendorCall("create_role", err)

	switch {
	case alreadyExists(err):
		m.log.WithField("role", m.cfg.IAMRoleName).Debug("IAM role already exists")
	case err != nil:
		return "", trace.Wrap(err, "creating IAM role %s", m.cfg.IAMRoleName)
	default:
		_, err = client.AttachRolePolicy(ctx, &iam.AttachRolePolicyInput{
			RoleName:  roleName,
			PolicyArn: aws.String(m.cfg.PolicyARN),
		})
		m.recordVendorCall("attach_role_policy", err)

		if err != nil && !alreadyExists(err) {
			return "", trace.Wrap(err, "attaching policy to IAM role %s", m.cfg.IAMRoleName)
		}
	}

	role, err := client.GetRole(ctx, &iam.GetRoleInput{RoleName: roleName})
	m.recordVendorCall("get_role", err)

	if err != nil {
		return "", trace.Wrap(err, "reading IAM role %s", m.cfg.IAMRoleName)
	}

	if role.Role == nil {
		return "", trace.NotFound("IAM role %s not found", m.cfg.IAMRoleName)
	}

	return aws.ToString(role.Role.Arn), nil
}

func (m *minter) recordVendorCall(operation string, err error) {
	if m.metrics != nil {
		m.metrics.RecordVendorCall("aws", operation, err)
	}
}

func alreadyExists(err error) bool {
	var exists *iamtypes.EntityAlreadyExistsException

	return errors.As(err, &exists)
}

type policyDocument struct {
	Version   string            `json:"Version"`
	Statement []policyStatement `json:"Statement"`
}

type policyStatement struct {
	Effect    string            `json:"Effect"`
	Principal map[string]string `json:"Principal"`
	Action    string            `json:"Action"`
}

// TrustPolicy lets principals of the account itself assume the captain role.
func TrustPolicy(accountID string) (string, error) {
	doc := policyDocument{
		Version: "2012-10-17",
		Statement: []policyStatement{{
			Effect:    "Allow",
			Principal: map[string]string{"AWS": fmt.Sprintf("arn:aws:iam::%s:root", accountID)},
			Action:    "sts:AssumeRole",
		}},
	}

	data, err := json.Marshal(doc)
	if err != nil {
		return "", trace.Wrap(err, "encoding trust policy")
	}

	return string(data), nil
}

// Snippet renders the .env instructions handed back to the caller.
func Snippet(accountName, accessKeyID, secretAccessKey, region, roleARN string) string {
	return fmt.Sprintf(`
# Run the following in your codespace environment to create your .env for %[1]s:

cat <<ENV >> $(pwd)/.env
export AWS_ACCESS_KEY_ID=%[2]s
export AWS_SECRET_ACCESS_KEY=%[3]s
export AWS_DEFAULT_REGION=%[4]s
#aws eks update-kubeconfig --region %[4]s --name captain-cluster --role-arn %[5]s
ENV

# Here is the iam_role_to_assume that you will need to specify in your terraform module for %[1]s:
# %[5]s

`, accountName, accessKeyID, secretAccessKey, region, roleARN)
}
