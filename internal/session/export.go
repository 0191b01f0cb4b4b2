package session

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/ygopack/packtrack/internal/common"
	"github.com/ygopack/packtrack/internal/model"
)

// exportDocument is the lossless JSON export shape. Importing one of these
// restores the session exactly, modulo recomputed totals.
type exportDocument struct {
	ExportedAt time.Time      `json:"exportedAt"`
	Version    int            `json:"version"`
	Session    *model.Session `json:"session"`
}

const exportVersion = 1

var csvHeader = []string{"name", "rarity", "cardNumber", "quantity", "estimatedPrice"}

// exportSession serializes a session in the requested format. "json" is
// lossless; "csv" is a flat per-card summary for spreadsheets.
func exportSession(s *model.Session, format string) ([]byte, error) {
	switch strings.ToLower(strings.TrimSpace(format)) {
	case "", "json":
		doc := exportDocument{
			ExportedAt: time.Now(),
			Version:    exportVersion,
			Session:    s,
		}
		return json.MarshalIndent(doc, "", "  ")
	case "csv":
		var buf bytes.Buffer
		w := csv.NewWriter(&buf)
		if err := w.Write(csvHeader); err != nil {
			return nil, fmt.Errorf("write csv header: %w", err)
		}
		for _, c := range s.Cards {
			row := []string{
				c.Name,
				c.Rarity,
				c.CardNumber,
				strconv.Itoa(c.Quantity),
				strconv.FormatFloat(c.EstimatedPrice(), 'f', 2, 64),
			}
			if err := w.Write(row); err != nil {
				return nil, fmt.Errorf("write csv row: %w", err)
			}
		}
		w.Flush()
		if err := w.Error(); err != nil {
			return nil, fmt.Errorf("flush csv: %w", err)
		}
		return buf.Bytes(), nil
	default:
		return nil, common.NewValidationError("format", fmt.Sprintf("unsupported export format %q", format))
	}
}

// importSession parses and validates an exported JSON document. Totals are
// rederived from the card list rather than trusted from the payload.
func importSession(payload []byte) (*model.Session, error) {
	var doc exportDocument
	if err := json.Unmarshal(payload, &doc); err != nil {
		return nil, fmt.Errorf("%w: %v", common.ErrInvalidImport, err)
	}
	s := doc.Session
	if s == nil {
		// Accept a bare session object too, for payloads produced by
		// older exports.
		s = &model.Session{}
		if err := json.Unmarshal(payload, s); err != nil {
			return nil, fmt.Errorf("%w: %v", common.ErrInvalidImport, err)
		}
	}
	if err := validateImported(s); err != nil {
		return nil, err
	}

	if s.StartTime.IsZero() {
		s.StartTime = time.Now()
	}

	// Cards sharing an identity collapse into one entry, and cards from
	// payloads that predate IDs get one, so the session's lookup indexes
	// stay one-to-one with the card list.
	byIdentity := make(map[model.CardIdentity]*model.SessionCard, len(s.Cards))
	merged := make([]*model.SessionCard, 0, len(s.Cards))
	for _, c := range s.Cards {
		model.SanitizeCard(c)
		if c.Quantity > model.MaxQuantity {
			c.Quantity = model.MaxQuantity
		}
		if c.CreatedAt.IsZero() {
			c.CreatedAt = s.StartTime
		}
		if existing, ok := byIdentity[c.Identity()]; ok {
			existing.Quantity += c.Quantity
			if existing.Quantity > model.MaxQuantity {
				existing.Quantity = model.MaxQuantity
			}
			if existing.Pricing == nil && c.Pricing != nil {
				existing.Pricing = c.Pricing
			}
			continue
		}
		if c.ID == "" {
			c.ID = uuid.New().String()
		}
		byIdentity[c.Identity()] = c
		merged = append(merged, c)
	}
	s.Cards = merged
	s.UpdatedAt = time.Now()
	s.Recompute()
	return s, nil
}

func validateImported(s *model.Session) error {
	if s.StartTime.IsZero() && len(s.Cards) == 0 && s.SetName == "" {
		return fmt.Errorf("%w: payload is not a session", common.ErrInvalidImport)
	}
	for i, c := range s.Cards {
		if c == nil {
			return fmt.Errorf("%w: card %d is null", common.ErrInvalidImport, i)
		}
		if strings.TrimSpace(c.Name) == "" {
			return fmt.Errorf("%w: card %d has no name", common.ErrInvalidImport, i)
		}
		if c.Quantity <= 0 {
			return fmt.Errorf("%w: card %d has non-positive quantity", common.ErrInvalidImport, i)
		}
	}
	return nil
}
