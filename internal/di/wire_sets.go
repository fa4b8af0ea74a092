package di

import (
	"github.com/google/wire"
)

// SuperSet combines all provider sets for the complete application.
var SuperSet = wire.NewSet(
	ObservabilityProviders,
	InfrastructureProviders,
	ApplicationProviders,
	InterfaceProviders,
	provideContainer,
)

// ObservabilityProviders provides logging, metrics and tracing.
var ObservabilityProviders = wire.NewSet(
	ProvideLogging,
	ProvideLogger,
	ProvideCollector,
	ProvideTracer,
)

// InfrastructureProviders provides the backend and the change feed.
var InfrastructureProviders = wire.NewSet(
	ProvideFeeds,
	ProvideBackend,
	ProvideStore,
	ProvideAdapter,
)

// ApplicationProviders provides sessions, commands and the linking machine.
var ApplicationProviders = wire.NewSet(
	ProvideSessions,
	ProvideCommands,
	ProvideLinking,
)

// InterfaceProviders provides the renderer-facing surfaces.
var InterfaceProviders = wire.NewSet(
	ProvideHub,
	ProvideRouter,
)
