package service

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"torchverso/models"

	"github.com/santhosh-tekuri/jsonschema/v5"
	"go.uber.org/zap"
)

var ErrInvalidSave = errors.New("invalid save document")

const saveSchemaURL = "torchverso://save.schema.json"

const saveSchema = `{
  "$schema": "http://json-schema.org/draft-07/schema#",
  "type": "object",
  "properties": {
    "economy": {
      "type": "object",
      "required": ["balance", "incomeRate"],
      "properties": {
        "balance": {"type": "integer"},
        "incomeRate": {"type": "integer", "minimum": 0}
      }
    },
    "land": {
      "type": "object",
      "required": ["wallet"],
      "properties": {
        "wallet": {"type": "integer", "minimum": 0},
        "plots": {"$ref": "#/definitions/plots"},
        "ownedPlots": {"$ref": "#/definitions/plots"}
      }
    },
    "buildings": {
      "type": "array",
      "items": {
        "type": "object",
        "required": ["type", "x", "z"],
        "properties": {
          "type": {"type": "string"},
          "x": {"type": "number"},
          "y": {"type": "number"},
          "z": {"type": "number"},
          "rotation": {"type": "number"}
        }
      }
    },
    "lastSaved": {"type": "string"}
  },
  "definitions": {
    "plots": {
      "type": "array",
      "items": {
        "type": "object",
        "required": ["id"],
        "properties": {
          "id": {"type": "string", "minLength": 1},
          "owner": {"type": ["string", "null"]},
          "rentExpires": {"type": ["integer", "null"]}
        }
      }
    }
  }
}`

func compileSaveSchema() (*jsonschema.Schema, error) {
	schema, err := jsonschema.CompileString(saveSchemaURL, saveSchema)
	if err != nil {
		return nil, fmt.Errorf("compile save schema: %w", err)
	}
	return schema, nil
}

// decodeSave validates raw against the save schema and decodes it.
func (s *Service) decodeSave(raw []byte) (models.SaveDocument, error) {
	var v interface{}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	if err := dec.Decode(&v); err != nil {
		return models.SaveDocument{}, fmt.Errorf("%w: %v", ErrInvalidSave, err)
	}
	if err := s.schema.Validate(v); err != nil {
		return models.SaveDocument{}, fmt.Errorf("%w: %v", ErrInvalidSave, err)
	}
	var doc models.SaveDocument
	if err := json.Unmarshal(raw, &doc); err != nil {
		return models.SaveDocument{}, fmt.Errorf("%w: %v", ErrInvalidSave, err)
	}
	return doc, nil
}

// initialSave is the document written by Reset.
func (s *Service) initialSave() models.SaveDocument {
	return models.SaveDocument{
		Economy:   models.EconomyState{Balance: s.tuning.StartingBalance},
		Land:      models.LandState{Wallet: s.tuning.StartingWallet, Plots: []models.PlotRecord{}},
		Buildings: []models.Building{},
	}
}

// Save writes the session's city to the store.
func (sess *Session) Save(ctx context.Context) error {
	sess.mu.Lock()
	doc := sess.document()
	sess.sinceSave = 0
	sess.mu.Unlock()

	doc.LastSaved = sess.svc.now().UTC()
	if err := sess.svc.repo.SaveCity(ctx, sess.uid, doc); err != nil {
		sess.logger.Warn("save city", zap.Error(err))
		return fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
	}
	sess.logger.Debug("city saved")
	return nil
}

// document snapshots the city. Plots held by other players are left to
// the claim store.
func (sess *Session) document() models.SaveDocument {
	landState := sess.land.ExportSnapshot()
	own := landState.Plots[:0]
	for _, rec := range landState.Plots {
		if rec.Owner == sess.uid {
			own = append(own, rec)
		}
	}
	landState.Plots = own
	return models.SaveDocument{
		Economy:   sess.econ.Export(),
		Land:      landState,
		Buildings: sess.builder.Buildings(),
	}
}

// apply loads doc into the session. Callers hold sess.mu.
func (sess *Session) apply(doc models.SaveDocument) error {
	if err := sess.land.ImportSnapshot(doc.Land); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidSave, err)
	}
	sess.econ.Import(doc.Economy)
	sess.builder.Restore(doc.Buildings)
	return nil
}

// Reset overwrites the save with the initial city and releases every plot
// the player holds.
func (sess *Session) Reset(ctx context.Context) error {
	doc := sess.svc.initialSave()
	if err := sess.svc.repo.SaveCity(ctx, sess.uid, doc); err != nil {
		sess.logger.Warn("reset city", zap.Error(err))
		return fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
	}

	sess.mu.Lock()
	owned := sess.land.ExportSnapshot().Plots
	err := sess.rebuild(doc)
	sess.mu.Unlock()
	if err != nil {
		return err
	}

	for _, rec := range owned {
		if rec.Owner != sess.uid {
			continue
		}
		if err := sess.svc.repo.ReleasePlot(ctx, rec.ID, sess.uid); err != nil {
			sess.logger.Warn("release plot", zap.String("plot", rec.ID), zap.Error(err))
		}
	}
	sess.SyncClaims(ctx)
	sess.logger.Info("city reset")
	return nil
}
