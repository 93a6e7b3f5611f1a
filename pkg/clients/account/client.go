package account

import "context"

type Client interface {
	// GetAccount returns the id of the account the credentials belong to.
	GetAccount(ctx context.Context) (string, error)

	// GetAccountAlias returns the account alias if there's one set, otherwise an empty string.
	GetAccountAlias(ctx context.Context) (string, error)
}
