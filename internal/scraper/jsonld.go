package scraper

import (
	"encoding/json"
	"strings"
)

// JSONLDThing covers the schema.org types a product landing page usually
// embeds (Product, SoftwareApplication, Organization, WebSite).
type JSONLDThing struct {
	Type        any             `json:"@type"`
	Name        string          `json:"name"`
	Description string          `json:"description"`
	Slogan      string          `json:"slogan"`
	Offers      json.RawMessage `json:"offers"`
	Graph       []JSONLDThing   `json:"@graph"`
}

type JSONLDOffer struct {
	Price         json.Number `json:"price"`
	PriceCurrency string      `json:"priceCurrency"`
}

// parseJSONLD returns every described thing in a JSON-LD block, flattening
// @graph containers and top-level arrays. Malformed blocks yield nothing.
func parseJSONLD(raw string) []JSONLDThing {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil
	}

	var things []JSONLDThing
	if strings.HasPrefix(raw, "[") {
		if err := json.Unmarshal([]byte(raw), &things); err != nil {
			return nil
		}
	} else {
		var thing JSONLDThing
		if err := json.Unmarshal([]byte(raw), &thing); err != nil {
			return nil
		}
		things = []JSONLDThing{thing}
	}

	return describedThings(things)
}

func describedThings(things []JSONLDThing) []JSONLDThing {
	var out []JSONLDThing
	for _, t := range things {
		if t.Name != "" || t.Description != "" {
			out = append(out, t)
		}
		out = append(out, describedThings(t.Graph)...)
	}
	return out
}

// summary renders the thing as prompt text.
func (t JSONLDThing) summary() string {
	var b strings.Builder
	if t.Name != "" {
		b.WriteString(t.Name)
	}
	if t.Slogan != "" {
		if b.Len() > 0 {
			b.WriteString(": ")
		}
		b.WriteString(t.Slogan)
	}
	if t.Description != "" {
		if b.Len() > 0 {
			b.WriteString(". ")
		}
		b.WriteString(t.Description)
	}
	if offer, ok := t.firstOffer(); ok && offer.Price != "" {
		b.WriteString(" (price: " + strings.TrimSpace(string(offer.Price)+" "+offer.PriceCurrency) + ")")
	}
	return strings.TrimSpace(b.String())
}

// firstOffer reads offers given either as one object or as a list.
func (t JSONLDThing) firstOffer() (JSONLDOffer, bool) {
	if len(t.Offers) == 0 {
		return JSONLDOffer{}, false
	}
	var one JSONLDOffer
	if err := json.Unmarshal(t.Offers, &one); err == nil {
		return one, true
	}
	var many []JSONLDOffer
	if err := json.Unmarshal(t.Offers, &many); err == nil && len(many) > 0 {
		return many[0], true
	}
	return JSONLDOffer{}, false
}
