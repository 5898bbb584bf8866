package api

import (
	"github.com/SuperrNaruto/you2down/app/database"
	"github.com/SuperrNaruto/you2down/app/sources"
	"github.com/SuperrNaruto/you2down/app/strategy"
)

type Handler struct {
	itemRepo      database.ItemRepository
	companionRepo database.CompanionRepository
	resolver      *strategy.Resolver
	configCache   *sources.ConfigCache
	version       string
}
