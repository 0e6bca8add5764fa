package cart

import (
	"context"

	listingdb "ms-coaching/internal/listings/db"
	"ms-coaching/internal/models"
	slotdb "ms-coaching/internal/slots/db"
)

// CatalogDB satisfies Catalog from the listing and slot tables.
type CatalogDB struct {
	Listings *listingdb.DB
	Slots    *slotdb.DB
}

func (c CatalogDB) GetListing(ctx context.Context, id int64) (*models.Listing, error) {
	return c.Listings.GetListing(ctx, id)
}

func (c CatalogDB) GetUser(ctx context.Context, id int64) (*models.User, error) {
	return c.Listings.GetUser(ctx, id)
}

func (c CatalogDB) GetSlot(ctx context.Context, id int64) (*models.Slot, error) {
	return c.Slots.GetSlot(ctx, id)
}
