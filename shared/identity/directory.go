package identity

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/cognitoidentityprovider"
	"github.com/aws/aws-sdk-go/service/cognitoidentityprovider/cognitoidentityprovideriface"

	"github.com/pavitra93/edu-tenancy/shared/utils"
)

// CognitoDirectory looks up user attributes that a token did not carry
type CognitoDirectory struct {
	client     cognitoidentityprovideriface.CognitoIdentityProviderAPI
	userPoolID string
	breaker    *utils.CircuitBreaker
}

// NewCognitoDirectory creates a directory over an existing Cognito client
func NewCognitoDirectory(client cognitoidentityprovideriface.CognitoIdentityProviderAPI, userPoolID string, breaker *utils.CircuitBreaker) *CognitoDirectory {
	return &CognitoDirectory{client: client, userPoolID: userPoolID, breaker: breaker}
}

// NewCognitoClient creates a Cognito client for region
func NewCognitoClient(region string) (*cognitoidentityprovider.CognitoIdentityProvider, error) {
	sess, err := session.NewSession(&aws.Config{Region: aws.String(region)})
	if err != nil {
		return nil, fmt.Errorf("failed to create AWS session: %w", err)
	}
	return cognitoidentityprovider.New(sess), nil
}

// LookupEmail returns the email attribute of the user with the given subject
func (d *CognitoDirectory) LookupEmail(ctx context.Context, subject string) (string, error) {
	var out *cognitoidentityprovider.AdminGetUserOutput
	err := d.breaker.Call(func() error {
		var callErr error
		out, callErr = d.client.AdminGetUserWithContext(ctx, &cognitoidentityprovider.AdminGetUserInput{
			UserPoolId: aws.String(d.userPoolID),
			Username:   aws.String(subject),
		})
		return callErr
	})
	if err != nil {
		return "", fmt.Errorf("failed to get user from Cognito: %w", err)
	}

	for _, attr := range out.UserAttributes {
		if aws.StringValue(attr.Name) == "email" {
			return aws.StringValue(attr.Value), nil
		}
	}
	return "", fmt.Errorf("user %s has no email attribute", subject)
}
