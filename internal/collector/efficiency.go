// Copyright The Telegen Authors
// SPDX-License-Identifier: Apache-2.0

package collector

import (
	"context"
	"errors"
	"fmt"

	"golang.org/x/sync/errgroup"

	"github.com/platformbuilds/sfc/internal/chunk"
	"github.com/platformbuilds/sfc/internal/lineproto"
	"github.com/platformbuilds/sfc/internal/sfapi"
)

// efficiencyLimit bounds concurrent GetVolumeEfficiency calls per chunk.
const efficiencyLimit = 4

var (
	efficiencyFields = []lineproto.Pair{
		lineproto.F("compression", "compression", lineproto.Float),
		lineproto.F("deduplication", "deduplication", lineproto.Float),
		lineproto.F("storageEfficiency", "storage_efficiency", lineproto.Float),
		lineproto.F("thinProvisioning", "thin_provisioning", lineproto.Float),
	}
	efficiencyTags = []lineproto.Pair{
		lineproto.T("id", "id"),
		lineproto.T("name", "name"),
	}

	accountEfficiencySchema = lineproto.Schema{Measurement: "account_efficiency", Tags: efficiencyTags, Fields: efficiencyFields}
	volumeEfficiencySchema  = lineproto.Schema{Measurement: "volume_efficiency", Tags: efficiencyTags, Fields: efficiencyFields}
)

func init() {
	register(Collector{Name: "account_efficiency", Run: collectAccountEfficiency, Schemas: []lineproto.Schema{accountEfficiencySchema}})
	register(Collector{Name: "volume_efficiency", Run: collectVolumeEfficiency, Schemas: []lineproto.Schema{volumeEfficiencySchema}})
}

// efficiencySource rounds the reported ratios. Storage efficiency is the
// product of the unrounded compression and deduplication.
func efficiencySource(id int64, name string, e sfapi.Efficiency) lineproto.Map {
	return lineproto.Map{
		"id":                id,
		"name":              name,
		"compression":       lineproto.Round2(e.Compression),
		"deduplication":     lineproto.Round2(e.Deduplication),
		"storageEfficiency": lineproto.Round2(e.Compression * e.Deduplication),
		"thinProvisioning":  lineproto.Round2(e.ThinProvisioning),
	}
}

func collectAccountEfficiency(ctx context.Context, env *Env) error {
	accounts, err := env.API.ListAccounts(ctx)
	if err != nil {
		return fmt.Errorf("account information not obtained: %w", err)
	}
	m := env.emitter()
	for _, a := range accounts {
		id, ok := a.Int("accountID")
		if !ok {
			env.Log.Warn("account without ID, skipping", "username", a.String("username"))
			continue
		}
		e, err := env.API.GetAccountEfficiency(ctx, id)
		if err != nil {
			return fmt.Errorf("efficiency of account %d not obtained: %w", id, err)
		}
		if err := m.encode(accountEfficiencySchema, efficiencySource(id, a.String("username"), e)); err != nil {
			return err
		}
	}
	return m.flush(ctx)
}

// collectVolumeEfficiency covers every volume, including deleted ones still
// holding data, and sends one payload per chunk. Chunks already sent stay
// sent when a later chunk fails.
func collectVolumeEfficiency(ctx context.Context, env *Env) error {
	vols, err := env.API.ListVolumes(ctx, false)
	if err != nil {
		return fmt.Errorf("volume information not obtained: %w", err)
	}
	names := sfapi.NamesOf(vols)
	if len(names) == 0 {
		return ErrNoData
	}

	var refused int
	for i, batch := range chunk.Split(names, env.chunkSize()) {
		results := make([]sfapi.Efficiency, len(batch))
		g, gctx := errgroup.WithContext(ctx)
		g.SetLimit(efficiencyLimit)
		for j, v := range batch {
			g.Go(func() error {
				e, err := env.API.GetVolumeEfficiency(gctx, v.ID)
				if err != nil {
					return fmt.Errorf("efficiency of volume %d not obtained: %w", v.ID, err)
				}
				results[j] = e
				return nil
			})
		}
		if err := g.Wait(); err != nil {
			return err
		}

		m := env.emitter()
		for j, v := range batch {
			if err := m.encode(volumeEfficiencySchema, efficiencySource(v.ID, v.Name, results[j])); err != nil {
				return err
			}
		}
		switch err := m.flush(ctx); {
		case errors.Is(err, ErrSendFailed):
			env.Log.Warn("volume efficiency batch not delivered", "batch", i)
			refused++
		case err != nil && !errors.Is(err, ErrNoData):
			return err
		}
	}
	if refused > 0 {
		return fmt.Errorf("%d volume efficiency batches: %w", refused, ErrSendFailed)
	}
	return nil
}
