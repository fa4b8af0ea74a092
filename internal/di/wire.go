//go:build wireinject
// +build wireinject

package di

import (
	"context"

	"github.com/divyanshwrite/worldflow/internal/config"

	"github.com/google/wire"
)

// InitializeContainer builds the container. The returned cleanup releases
// every component in reverse construction order.
func InitializeContainer(ctx context.Context, cfg *config.Config) (*Container, func(), error) {
	wire.Build(SuperSet)
	return nil, nil, nil
}
