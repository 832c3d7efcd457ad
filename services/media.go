package services

import (
	"context"
	"fmt"
	"path"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"propsync/identity"
	"propsync/metrics"
	"propsync/models"
	"propsync/storage"
	"propsync/workers"
)

const DefaultImageConcurrency = 3

// ImageProcessor turns a source URL into stored-ready bytes.
type ImageProcessor interface {
	Process(ctx context.Context, url string) (*workers.Encoded, error)
}

// PlannedImage is one current image slot and what to do with it.
type PlannedImage struct {
	models.CurrentImage
	IsPrimary bool
	// Existing is the persisted row for this URL, nil for a new URL.
	Existing *models.Image
}

// ImagePlan is the outcome of comparing current and persisted images.
type ImagePlan struct {
	ToDownload []PlannedImage // new URLs and rows whose file is missing
	ToUpdate   []PlannedImage // kept rows whose position or primary flag changed
	Keep       []PlannedImage // kept rows that need no write
	ToDelete   []models.Image
}

// ImageResult counts what one listing's image sync did.
type ImageResult struct {
	Downloaded int
	Deleted    int
	Errors     int
}

// ImageSync reconciles a listing's image rows and files.
type ImageSync struct {
	store       *storage.Store
	blobs       storage.Blobs
	processor   ImageProcessor
	concurrency int
}

func NewImageSync(store *storage.Store, blobs storage.Blobs, processor ImageProcessor, concurrency int) *ImageSync {
	if concurrency <= 0 {
		concurrency = DefaultImageConcurrency
	}
	return &ImageSync{store: store, blobs: blobs, processor: processor, concurrency: concurrency}
}

// CurrentImages orders the source images by their declared order (falling
// back to list position) and assigns dense 0-based ordinals. Repeated URLs
// keep their first slot.
func CurrentImages(raw []models.RawImage) []models.CurrentImage {
	type slot struct {
		url   string
		order int
		pos   int
	}
	slots := make([]slot, 0, len(raw))
	for i, img := range raw {
		order := i
		if img.Order != nil {
			order = *img.Order
		}
		slots = append(slots, slot{url: img.URL, order: order, pos: i})
	}
	sort.SliceStable(slots, func(a, b int) bool {
		if slots[a].order != slots[b].order {
			return slots[a].order < slots[b].order
		}
		return slots[a].pos < slots[b].pos
	})

	seen := make(map[string]bool, len(slots))
	current := make([]models.CurrentImage, 0, len(slots))
	for _, s := range slots {
		if s.url == "" || seen[s.url] {
			continue
		}
		seen[s.url] = true
		current = append(current, models.CurrentImage{URL: s.url, Ordinal: len(current)})
	}
	return current
}

// PlanImages compares current slots against persisted rows. exists reports
// whether a stored file is still on the backing store.
func PlanImages(current []models.CurrentImage, persisted []models.Image, exists func(localPath string) bool) ImagePlan {
	byURL := make(map[string]*models.Image, len(persisted))
	for i := range persisted {
		byURL[persisted[i].OriginalURL] = &persisted[i]
	}

	var plan ImagePlan
	inCurrent := make(map[string]bool, len(current))
	for _, c := range current {
		inCurrent[c.URL] = true
		p := PlannedImage{CurrentImage: c, IsPrimary: c.Ordinal == 0}

		existing, ok := byURL[c.URL]
		if !ok {
			plan.ToDownload = append(plan.ToDownload, p)
			continue
		}
		p.Existing = existing

		if !existing.Downloaded() || !exists(*existing.LocalPath) {
			plan.ToDownload = append(plan.ToDownload, p)
			continue
		}
		if existing.Ordinal != c.Ordinal || existing.IsPrimary != p.IsPrimary {
			plan.ToUpdate = append(plan.ToUpdate, p)
		} else {
			plan.Keep = append(plan.Keep, p)
		}
	}

	for _, img := range persisted {
		if !inCurrent[img.OriginalURL] {
			plan.ToDelete = append(plan.ToDelete, img)
		}
	}
	return plan
}

// Reconcile plans against the backing store without writing anything.
func (s *ImageSync) Reconcile(ctx context.Context, current []models.CurrentImage, persisted []models.Image) ImagePlan {
	return PlanImages(current, persisted, func(localPath string) bool {
		ok, err := s.blobs.Exists(ctx, localPath)
		if err != nil {
			log.Warn().Err(err).Str("path", localPath).Msg("image existence check failed")
			return false
		}
		return ok
	})
}

type downloaded struct {
	plan PlannedImage
	enc  *workers.Encoded
	key  string
}

// Sync brings the listing's images in line with raw. Download failures are
// counted in the result; only storage errors are returned.
func (s *ImageSync) Sync(ctx context.Context, listing *models.Listing, raw []models.RawImage, download bool) (ImageResult, error) {
	var result ImageResult
	download = download && s.processor != nil

	persisted, err := s.store.ListImages(ctx, listing.ID)
	if err != nil {
		return result, err
	}

	current := CurrentImages(raw)
	plan := s.Reconcile(ctx, current, persisted)

	var fetched []downloaded
	if download {
		fetched, result.Errors = s.download(ctx, listing.Ref, plan, persisted)
	}
	got := make(map[string]downloaded, len(fetched))
	for _, d := range fetched {
		got[d.plan.URL] = d
	}

	err = s.store.WithTx(ctx, func(tx *storage.Store) error {
		ids := make([]int64, len(plan.ToDelete))
		for i, img := range plan.ToDelete {
			ids[i] = img.ID
		}
		if err := tx.DeleteImages(ctx, ids); err != nil {
			return err
		}

		for _, p := range plan.ToUpdate {
			if err := tx.UpdateImagePosition(ctx, p.Existing.ID, p.Ordinal, p.IsPrimary); err != nil {
				return err
			}
		}

		for _, p := range plan.ToDownload {
			img := models.Image{
				ListingID:   listing.ID,
				OriginalURL: p.URL,
				Ordinal:     p.Ordinal,
				IsPrimary:   p.IsPrimary,
			}
			if p.Existing != nil {
				img.CreatedAt = p.Existing.CreatedAt
			}
			if d, ok := got[p.URL]; ok {
				key, hash := d.key, d.enc.Hash
				img.LocalPath = &key
				img.ContentHash = &hash
				img.Width = d.enc.Width
				img.Height = d.enc.Height
				img.SizeBytes = int64(len(d.enc.Data))
			} else if p.Existing != nil && !download {
				// keep whatever the row had; nothing was fetched this run
				img.LocalPath = p.Existing.LocalPath
				img.ContentHash = p.Existing.ContentHash
				img.Width = p.Existing.Width
				img.Height = p.Existing.Height
				img.SizeBytes = p.Existing.SizeBytes
			}
			if err := tx.UpsertImage(ctx, &img); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return result, fmt.Errorf("apply image batch for %d: %w", listing.Ref, err)
	}

	result.Downloaded = len(fetched)
	result.Deleted = len(plan.ToDelete)
	s.removeFiles(ctx, plan.ToDelete)

	metrics.ImagesProcessed.WithLabelValues("downloaded").Add(float64(result.Downloaded))
	metrics.ImagesProcessed.WithLabelValues("deleted").Add(float64(result.Deleted))
	metrics.ImagesProcessed.WithLabelValues("error").Add(float64(result.Errors))
	return result, nil
}

// download fetches every planned image with bounded parallelism and writes
// the encoded files. Failures are logged and counted, never returned.
func (s *ImageSync) download(ctx context.Context, ref int64, plan ImagePlan, persisted []models.Image) ([]downloaded, int) {
	keys := assignKeys(ref, plan, persisted)

	var (
		mu      sync.Mutex
		fetched []downloaded
		failed  int
	)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.concurrency)
	for _, p := range plan.ToDownload {
		g.Go(func() error {
			key := keys[p.URL]
			enc, err := s.processor.Process(gctx, p.URL)
			if err == nil {
				err = s.blobs.Put(gctx, key, enc.Data, enc.ContentType)
			}

			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				failed++
				log.Warn().Err(err).Int64("ref", ref).Str("url", p.URL).Msg("image download failed")
				return nil
			}
			fetched = append(fetched, downloaded{plan: p, enc: enc, key: key})
			return nil
		})
	}
	_ = g.Wait()

	return fetched, failed
}

func (s *ImageSync) removeFiles(ctx context.Context, deleted []models.Image) {
	for _, img := range deleted {
		if !img.Downloaded() {
			continue
		}
		inUse, err := s.store.ImagePathInUse(ctx, *img.LocalPath)
		if err != nil || inUse {
			continue
		}
		if err := s.blobs.Delete(ctx, *img.LocalPath); err != nil {
			log.Warn().Err(err).Str("path", *img.LocalPath).Msg("image file not removed")
		}
	}
}

var unsafeNameRegex = regexp.MustCompile(`[^a-z0-9_-]+`)

// ImageKey is the deterministic relative path for an image slot.
func ImageKey(ref int64, ordinal int, url string) string {
	base := path.Base(strings.SplitN(strings.SplitN(url, "?", 2)[0], "#", 2)[0])
	stem := strings.TrimSuffix(base, path.Ext(base))
	stem = strings.Trim(unsafeNameRegex.ReplaceAllString(strings.ToLower(identity.Fold(stem)), "-"), "-")
	if len(stem) > 60 {
		stem = stem[:60]
	}

	name := strconv.Itoa(ordinal)
	if stem != "" && stem != "." {
		name += "-" + stem
	}
	return fmt.Sprintf("%d/%s.jpg", ref, name)
}

// assignKeys picks a file key for every planned download. A row that
// already had a path keeps it; a new key that collides with a path still
// in use gets the URL hash appended.
func assignKeys(ref int64, plan ImagePlan, persisted []models.Image) map[string]string {
	deleted := make(map[int64]bool, len(plan.ToDelete))
	for _, img := range plan.ToDelete {
		deleted[img.ID] = true
	}

	taken := make(map[string]bool)
	for _, img := range persisted {
		if img.Downloaded() && !deleted[img.ID] {
			taken[*img.LocalPath] = true
		}
	}

	keys := make(map[string]string, len(plan.ToDownload))
	for _, p := range plan.ToDownload {
		if p.Existing != nil && p.Existing.Downloaded() {
			keys[p.URL] = *p.Existing.LocalPath
		}
	}
	for _, p := range plan.ToDownload {
		if _, ok := keys[p.URL]; ok {
			continue
		}
		key := ImageKey(ref, p.Ordinal, p.URL)
		if taken[key] {
			key = strings.TrimSuffix(key, ".jpg") + "-" + identity.FingerprintBytes([]byte(p.URL))[:8] + ".jpg"
		}
		taken[key] = true
		keys[p.URL] = key
	}
	return keys
}
