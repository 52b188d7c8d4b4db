package blob

import (
	"context"
	"errors"
	"log"
	"time"
)

// SweepResult summarizes one Sweep run.
type SweepResult struct {
	Scanned int
	Kept    int
	Young   int
	Deleted int
	Failed  int
}

// Sweep deletes blobs that no song references. Blobs newer than grace are
// left alone: an upload in flight has stored its blob but may not have
// committed the song yet.
func Sweep(ctx context.Context, store Store, referenced map[string]struct{}, grace time.Duration, now time.Time) (SweepResult, error) {
	var res SweepResult
	var orphans []string

	err := store.Walk(ctx, func(obj Object) error {
		res.Scanned++
		if _, ok := referenced[obj.Key]; ok {
			res.Kept++
			return nil
		}
		if now.Sub(obj.ModTime) < grace {
			res.Young++
			return nil
		}
		orphans = append(orphans, obj.Key)
		return nil
	})
	if err != nil {
		return res, err
	}

	for _, key := range orphans {
		if err := store.Delete(ctx, key); err != nil && !errors.Is(err, ErrNotFound) {
			log.Printf("blob_sweep delete_failed key=%s error=%v", key, err)
			res.Failed++
			continue
		}
		res.Deleted++
	}
	return res, nil
}
