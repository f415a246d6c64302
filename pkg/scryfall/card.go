package scryfall

// Card is the wire shape of one card object in a bulk dataset. Only the
// fields the store persists are decoded; everything else in the source
// object is discarded at the boundary.
type Card struct {
	ID            string            `json:"id"`
	Name          string            `json:"name"`
	ManaCost      *string           `json:"mana_cost,omitempty"`
	CMC           *float64          `json:"cmc,omitempty"`
	TypeLine      *string           `json:"type_line,omitempty"`
	OracleText    *string           `json:"oracle_text,omitempty"`
	Power         *string           `json:"power,omitempty"`
	Toughness     *string           `json:"toughness,omitempty"`
	Loyalty       *string           `json:"loyalty,omitempty"`
	Rarity        *string           `json:"rarity,omitempty"`
	Artist        *string           `json:"artist,omitempty"`
	FlavorText    *string           `json:"flavor_text,omitempty"`
	Set           string            `json:"set"`
	SetName       string            `json:"set_name"`
	SetType       *string           `json:"set_type,omitempty"`
	ReleasedAt    *string           `json:"released_at,omitempty"`
	Colors        []string          `json:"colors,omitempty"`
	ColorIdentity []string          `json:"color_identity,omitempty"`
	Legalities    map[string]string `json:"legalities,omitempty"`
	Prices        *CardPrices       `json:"prices,omitempty"`
	ImageURIs     *CardImages       `json:"image_uris,omitempty"`
}

// CardPrices is the price snapshot as published in the dataset.
type CardPrices struct {
	USD     *string `json:"usd,omitempty"`
	USDFoil *string `json:"usd_foil,omitempty"`
	EUR     *string `json:"eur,omitempty"`
	Tix     *string `json:"tix,omitempty"`
}

// CardImages is the image URI block as published in the dataset.
type CardImages struct {
	Small  *string `json:"small,omitempty"`
	Normal *string `json:"normal,omitempty"`
	Large  *string `json:"large,omitempty"`
	PNG    *string `json:"png,omitempty"`
}
