package resolver

import "context"

// Client describes the requester of a resolution, carried into events.
type Client struct {
	UserAgent string
	Referer   string
}

type clientKey struct{}

func WithClient(ctx context.Context, c Client) context.Context {
	return context.WithValue(ctx, clientKey{}, c)
}

func ClientFrom(ctx context.Context) Client {
	c, _ := ctx.Value(clientKey{}).(Client)
	return c
}
