package sync

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/Ramsey-B/clover/pkg/database"
	"github.com/Ramsey-B/clover/pkg/fingerprint"
	"github.com/Ramsey-B/clover/pkg/models"
	"github.com/Ramsey-B/clover/pkg/scryfall"
)

// hashFields is the fixed field list the fingerprint covers. It spans every
// card field the store persists, including the natural keys of references and
// the full child-attribute sets, so any persisted difference changes the
// digest and nothing else does.
var hashFields = []string{
	"id",
	"name",
	"mana_cost",
	"cmc",
	"type_line",
	"oracle_text",
	"power",
	"toughness",
	"loyalty",
	"rarity",
	"artist",
	"flavor_text",
	"set",
	"set_name",
	"set_type",
	"released_at",
	"colors",
	"color_identity",
	"legalities",
	"prices",
	"image_uris",
}

type artistResolver interface {
	ResolveOrCreate(ctx context.Context, name string) (int64, bool, error)
}

// ChangeSet is the pure transformation result for one batch: the rows to
// write plus the skip bookkeeping. Building it performs no store writes
// beyond artist resolution.
type ChangeSet struct {
	Batch models.CardBatch

	Processed int
	Skipped   int

	// ChangedIDs lists the card ids carried in the batch, in input order.
	ChangedIDs []string

	// Digests maps card id to its fresh fingerprint; applied to the hash
	// cache only after the batch commits.
	Digests map[string]string
}

// buildChangeSet fingerprints each card and emits rows for the ones whose
// digest differs from the cached one. Sets are deduplicated per batch by
// code. Artist resolution goes through the cache first; resolver hits are
// cached for the rest of the run.
func buildChangeSet(ctx context.Context, cards []*scryfall.Card, caches *Caches, resolver artistResolver) (*ChangeSet, error) {
	cs := &ChangeSet{
		Digests: make(map[string]string),
	}
	seenSets := make(map[string]bool)

	for _, card := range cards {
		cs.Processed++

		digest := fingerprint.GenerateWithFields(hashableFields(card), hashFields)
		if cached, ok := caches.Hashes[card.ID]; ok && !fingerprint.HasChanged(cached, digest) {
			cs.Skipped++
			continue
		}

		var artistID *int64
		if card.Artist != nil && *card.Artist != "" {
			id, ok := caches.Artists[*card.Artist]
			if !ok {
				resolved, _, err := resolver.ResolveOrCreate(ctx, *card.Artist)
				if err != nil {
					return nil, fmt.Errorf("failed to resolve artist %q: %w", *card.Artist, err)
				}
				id = resolved
				caches.Artists[*card.Artist] = id
			}
			artistID = &id
		}

		if card.Set != "" && !seenSets[card.Set] {
			seenSets[card.Set] = true
			cs.Batch.Sets = append(cs.Batch.Sets, models.CardSet{
				Code:       card.Set,
				Name:       card.SetName,
				SetType:    card.SetType,
				ReleasedAt: parseReleaseDate(card.ReleasedAt),
			})
		}

		cs.Batch.Cards = append(cs.Batch.Cards, cardRow(card, artistID, digest))
		appendChildRows(&cs.Batch, card)

		cs.ChangedIDs = append(cs.ChangedIDs, card.ID)
		cs.Digests[card.ID] = digest
	}

	return cs, nil
}

func cardRow(card *scryfall.Card, artistID *int64, digest string) models.Card {
	row := models.Card{
		ID:         card.ID,
		Name:       card.Name,
		ManaCost:   card.ManaCost,
		CMC:        card.CMC,
		TypeLine:   card.TypeLine,
		OracleText: card.OracleText,
		Power:      card.Power,
		Toughness:  card.Toughness,
		Loyalty:    card.Loyalty,
		Rarity:     card.Rarity,
		FlavorText: card.FlavorText,
		ArtistID:   artistID,
		DataHash:   digest,
	}
	if card.Set != "" {
		setCode := card.Set
		row.SetCode = &setCode
	}
	if card.Prices != nil {
		row.Prices = database.JSONB[models.CardPrices]{Data: models.CardPrices{
			USD:     card.Prices.USD,
			USDFoil: card.Prices.USDFoil,
			EUR:     card.Prices.EUR,
			Tix:     card.Prices.Tix,
		}}
	}
	if card.ImageURIs != nil {
		row.ImageURIs = database.JSONB[models.CardImages]{Data: models.CardImages{
			Small:  card.ImageURIs.Small,
			Normal: card.ImageURIs.Normal,
			Large:  card.ImageURIs.Large,
			PNG:    card.ImageURIs.PNG,
		}}
	}
	return row
}

func appendChildRows(batch *models.CardBatch, card *scryfall.Card) {
	// deterministic order keeps statements stable across runs
	formats := make([]string, 0, len(card.Legalities))
	for format := range card.Legalities {
		formats = append(formats, format)
	}
	sort.Strings(formats)
	for _, format := range formats {
		batch.Legalities = append(batch.Legalities, models.CardLegality{
			CardID: card.ID,
			Format: format,
			Status: card.Legalities[format],
		})
	}

	for _, color := range card.Colors {
		batch.Colors = append(batch.Colors, models.CardColor{CardID: card.ID, Color: color})
	}
	for _, color := range card.ColorIdentity {
		batch.ColorIdentity = append(batch.ColorIdentity, models.CardColor{CardID: card.ID, Color: color})
	}
}

// hashableFields flattens a card into the map the fingerprint is computed
// over. Nil pointer fields are dropped by the fingerprint, so a card missing
// a field digests the same as one carrying it as null.
func hashableFields(card *scryfall.Card) map[string]any {
	return map[string]any{
		"id":             card.ID,
		"name":           card.Name,
		"mana_cost":      card.ManaCost,
		"cmc":            card.CMC,
		"type_line":      card.TypeLine,
		"oracle_text":    card.OracleText,
		"power":          card.Power,
		"toughness":      card.Toughness,
		"loyalty":        card.Loyalty,
		"rarity":         card.Rarity,
		"artist":         card.Artist,
		"flavor_text":    card.FlavorText,
		"set":            card.Set,
		"set_name":       card.SetName,
		"set_type":       card.SetType,
		"released_at":    card.ReleasedAt,
		"colors":         card.Colors,
		"color_identity": card.ColorIdentity,
		"legalities":     card.Legalities,
		"prices":         card.Prices,
		"image_uris":     card.ImageURIs,
	}
}

func parseReleaseDate(value *string) *time.Time {
	if value == nil || *value == "" {
		return nil
	}
	parsed, err := time.Parse("2006-01-02", *value)
	if err != nil {
		return nil
	}
	return &parsed
}
