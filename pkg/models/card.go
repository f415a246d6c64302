package models

import (
	"time"

	"github.com/Ramsey-B/clover/pkg/database"
)

// Card is a persisted card record.
// Field order matches schema: id, name, mana_cost, cmc, type_line, oracle_text, ...
type Card struct {
	ID         string                      `json:"id" db:"id"`
	Name       string                      `json:"name" db:"name"`
	ManaCost   *string                     `json:"mana_cost,omitempty" db:"mana_cost"`
	CMC        *float64                    `json:"cmc,omitempty" db:"cmc"`
	TypeLine   *string                     `json:"type_line,omitempty" db:"type_line"`
	OracleText *string                     `json:"oracle_text,omitempty" db:"oracle_text"`
	Power      *string                     `json:"power,omitempty" db:"power"`
	Toughness  *string                     `json:"toughness,omitempty" db:"toughness"`
	Loyalty    *string                     `json:"loyalty,omitempty" db:"loyalty"`
	Rarity     *string                     `json:"rarity,omitempty" db:"rarity"`
	FlavorText *string                     `json:"flavor_text,omitempty" db:"flavor_text"`
	SetCode    *string                     `json:"set_code,omitempty" db:"set_code"`
	ArtistID   *int64                      `json:"artist_id,omitempty" db:"artist_id"`
	Prices     database.JSONB[CardPrices]  `json:"prices" db:"prices"`
	ImageURIs  database.JSONB[CardImages]  `json:"image_uris" db:"image_uris"`
	DataHash   string                      `json:"data_hash" db:"data_hash"`
	CreatedAt  time.Time                   `json:"created_at" db:"created_at"`
	UpdatedAt  time.Time                   `json:"updated_at" db:"updated_at"`
}

// CardPrices holds the market price snapshot carried on a card.
type CardPrices struct {
	USD     *string `json:"usd,omitempty"`
	USDFoil *string `json:"usd_foil,omitempty"`
	EUR     *string `json:"eur,omitempty"`
	Tix     *string `json:"tix,omitempty"`
}

// CardImages holds the image URIs carried on a card.
type CardImages struct {
	Small  *string `json:"small,omitempty"`
	Normal *string `json:"normal,omitempty"`
	Large  *string `json:"large,omitempty"`
	PNG    *string `json:"png,omitempty"`
}

// CardSet is a persisted set record, keyed by its natural code.
type CardSet struct {
	Code       string     `json:"code" db:"code"`
	Name       string     `json:"name" db:"name"`
	SetType    *string    `json:"set_type,omitempty" db:"set_type"`
	ReleasedAt *time.Time `json:"released_at,omitempty" db:"released_at"`
	CreatedAt  time.Time  `json:"created_at" db:"created_at"`
	UpdatedAt  time.Time  `json:"updated_at" db:"updated_at"`
}

// Artist is a reference record resolved by unique name.
type Artist struct {
	ID        int64     `json:"id" db:"id"`
	Name      string    `json:"name" db:"name"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

// CardLegality is one format ruling for a card.
type CardLegality struct {
	CardID string `json:"card_id" db:"card_id"`
	Format string `json:"format" db:"format"`
	Status string `json:"status" db:"status"`
}

// CardColor is one color symbol attached to a card.
type CardColor struct {
	CardID string `json:"card_id" db:"card_id"`
	Color  string `json:"color" db:"color"`
}

// CardBatch is one batch worth of rows to persist together. Child slices are
// full replace-sets for the cards they reference.
type CardBatch struct {
	Sets          []CardSet
	Cards         []Card
	Legalities    []CardLegality
	Colors        []CardColor
	ColorIdentity []CardColor
}

// IsEmpty reports whether the batch carries no writes at all.
func (b *CardBatch) IsEmpty() bool {
	return len(b.Sets) == 0 && len(b.Cards) == 0
}

// CardListResponse is the response for listing cards
type CardListResponse struct {
	Items      []Card `json:"items"`
	TotalCount int    `json:"total_count"`
	Page       int    `json:"page"`
	PageSize   int    `json:"page_size"`
}
