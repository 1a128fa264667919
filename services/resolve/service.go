// Package resolve turns a virtual or placeholder-backed item identity into a
// playable multi-source response. It owns no durable state: items come from
// the ephemeral catalog store or the host library, and every upstream failure
// degrades to "fewer candidates" or "not resolvable", never an error page.
package resolve

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sourcegraph/conc/pool"

	"mirage/config"
	"mirage/models"
	"mirage/services/catalog"
	identitypkg "mirage/services/identity"
)

// ErrNotResolvable means this engine does not know the identity or cannot
// produce a stream for it. The caller maps it to its own native not-found
// handling; it is a negative outcome, not a failure.
var ErrNotResolvable = errors.New("identity not resolvable")

// HostLibrary is the host's persisted-item collaborator.
type HostLibrary interface {
	Lookup(ctx context.Context, identity string) (models.PersistedItem, bool, error)
	UpdateRuntime(ctx context.Context, identity string, ticks int64) error
}

// RuntimeLookup answers runtime queries from a metadata API.
type RuntimeLookup interface {
	MovieRuntimeTicks(ctx context.Context, externalIDs map[string]string) (int64, bool)
	EpisodeRuntimeTicks(ctx context.Context, externalIDs map[string]string, season, episode int) (int64, bool)
}

// SubtitleSource returns cached sidecar tracks for an item.
type SubtitleSource interface {
	TracksFor(ctx context.Context, item models.VirtualItem) []models.SubtitleTrack
}

// DurationProber recovers a duration from a streaming manifest.
type DurationProber interface {
	ProbeDurationTicks(ctx context.Context, url string) (int64, bool)
}

// Submitter accepts fire-and-forget background work. The contract is
// "submitted", not "completed"; a false return means the work was dropped.
type Submitter interface {
	Submit(name string, fn func(context.Context) error) bool
}

// Escalator requests acquisition of the real file for an item downstream.
type Escalator interface {
	RequestAcquisition(ctx context.Context, item models.VirtualItem) error
}

// StreamLookup is the single-result remote lookup strategy.
type StreamLookup interface {
	Lookup(ctx context.Context, id string, season, episode int) (url, filename string, err error)
}

// StreamAggregator is the multi-result addon-style strategy.
type StreamAggregator interface {
	Streams(ctx context.Context, imdbID string, season, episode int) ([]AggregatedStream, error)
}

// Deps carries the engine's collaborators. Any of them may be nil; the engine
// degrades to the strategies and data points that remain.
type Deps struct {
	Library    HostLibrary
	Runtime    RuntimeLookup
	Subtitles  SubtitleSource
	Prober     DurationProber
	Tasks      Submitter
	Escalator  Escalator
	Remote     StreamLookup
	Aggregator StreamAggregator
}

// Engine is the stream resolution engine.
type Engine struct {
	store *catalog.Store
	deps  Deps
	now   func() time.Time
}

// NewEngine creates an engine over the given catalog store.
func NewEngine(store *catalog.Store, deps Deps) *Engine {
	return &Engine{store: store, deps: deps, now: time.Now}
}

type candidate struct {
	sourceID     string
	variantKey   string
	url          string
	filenameHint string
}

// ResolvePlayback resolves an identity (and optional previously-issued source
// identity) into a playable response. Settings are an immutable snapshot taken
// by the caller; a configuration reload produces a new snapshot, never mutated
// shared state.
func (e *Engine) ResolvePlayback(ctx context.Context, settings config.Settings, req models.ResolveRequest) (*models.PlaybackResponse, error) {
	itemID := strings.TrimSpace(req.Identity)
	if itemID == "" {
		return nil, ErrNotResolvable
	}
	selected := strings.TrimSpace(req.Variant)

	// The player may request a derived media-source identity directly; map it
	// back to its parent and remember the selection for this playback-start
	// sequence. The persisted ref also seeds the candidate list below, so the
	// exact stream the player picked survives a changed or failing provider
	// listing.
	var seed *candidate
	if ref, ok := e.store.GetSource(itemID); ok {
		if selected == "" {
			selected = itemID
		}
		if ref.URL != "" {
			seed = &candidate{
				sourceID:     itemID,
				variantKey:   ref.VariantKey,
				url:          ref.URL,
				filenameHint: ref.FilenameHint,
			}
		}
		itemID = ref.ParentIdentity
	}
	if selected == "" {
		if sel, ok := e.store.SelectedVariant(itemID); ok {
			selected = sel
		}
	} else {
		e.store.SelectVariant(itemID, selected)
	}

	item, persisted, ok := e.lookupItem(ctx, itemID)
	if !ok {
		return nil, ErrNotResolvable
	}
	if selected == "" && persisted.pinnedVariant != "" {
		selected = persisted.pinnedVariant
	}

	if !settings.Streaming.AllowUnreleased {
		if item.PremiereDate == nil || item.PremiereDate.After(e.now()) {
			log.Printf("[resolve] %s %q not released yet, skipping", item.Kind, item.DisplayName)
			return nil, ErrNotResolvable
		}
	}

	series := e.seriesFor(item, persisted)

	candidates, err := e.buildCandidates(ctx, settings, item, series)
	if err != nil {
		if seed == nil {
			log.Printf("[resolve] no candidates for %q: %v", item.DisplayName, err)
			return nil, ErrNotResolvable
		}
		log.Printf("[resolve] provider failed for %q, replaying stored source: %v", item.DisplayName, err)
		candidates = nil
	}
	if seed != nil && !containsSource(candidates, seed.sourceID) {
		candidates = append(candidates, *seed)
	}
	if len(candidates) == 0 {
		return nil, ErrNotResolvable
	}

	for _, c := range candidates {
		e.store.PutSource(c.sourceID, catalog.SourceRef{
			ParentIdentity: item.Identity,
			VariantKey:     c.variantKey,
			URL:            c.url,
			FilenameHint:   c.filenameHint,
		})
	}
	allCandidates := candidates

	candidates = filterSelected(candidates, selected)

	var (
		runtimeTicks int64
		tracks       []models.SubtitleTrack
	)
	p := pool.New()
	p.Go(func() {
		runtimeTicks = e.determineRuntime(ctx, settings, item, series, candidates)
	})
	p.Go(func() {
		if e.deps.Subtitles != nil {
			tracks = e.deps.Subtitles.TracksFor(ctx, item)
		}
	})
	p.Wait()

	e.reconcileRuntime(ctx, item, persisted, runtimeTicks)
	e.updateVariants(item, allCandidates, runtimeTicks, tracks)
	e.submitEscalation(item)

	response := &models.PlaybackResponse{
		PlaySessionID: uuid.NewString(),
		Sources:       make([]models.PlaybackSource, 0, len(candidates)),
	}
	for _, c := range candidates {
		container := ClassifyContainer(c.url, c.filenameHint)
		source := models.PlaybackSource{
			ID:                 c.sourceID,
			Name:               variantLabel(item, c.variantKey),
			URL:                c.url,
			Container:          container,
			IsRemote:           true,
			SupportsDirectPlay: true,
			RuntimeTicks:       runtimeTicks,
			SubtitleTracks:     tracks,
		}
		if container != ContainerHLS {
			// Fixed estimate so time-based seek math works on formats
			// without native segment indices.
			source.Bitrate = settings.Playback.BitrateEstimate
		}
		response.Sources = append(response.Sources, source)
	}
	return response, nil
}

// persistedInfo tracks what the library lookup contributed, for the runtime
// write-back and variant pinning.
type persistedInfo struct {
	isPersisted   bool
	storedTicks   int64
	pinnedVariant string
	seriesIDs     map[string]string
}

// lookupItem loads the item from the ephemeral store, falling back to the
// host's persisted record when its stored location decodes as a placeholder.
func (e *Engine) lookupItem(ctx context.Context, itemID string) (models.VirtualItem, persistedInfo, bool) {
	if item, ok := e.store.GetItem(itemID); ok {
		return item, persistedInfo{}, true
	}
	if e.deps.Library == nil {
		return models.VirtualItem{}, persistedInfo{}, false
	}

	record, found, err := e.deps.Library.Lookup(ctx, itemID)
	if err != nil {
		log.Printf("[resolve] library lookup for %s failed: %v", itemID, err)
		return models.VirtualItem{}, persistedInfo{}, false
	}
	if !found {
		return models.VirtualItem{}, persistedInfo{}, false
	}
	placeholder, ok := identitypkg.DecodePlaceholderURI(record.PlaceholderURI)
	if !ok {
		// Not a placeholder item: the host handles it natively.
		return models.VirtualItem{}, persistedInfo{}, false
	}

	item := itemFromPersisted(record, placeholder)
	// Cache the reconstructed item so identity-keyed lookups made after the
	// playback response, subtitle delivery in particular, find it.
	e.store.PutItem(item)
	info := persistedInfo{
		isPersisted:   true,
		storedTicks:   record.RuntimeTicks,
		pinnedVariant: placeholder.AudioTrack,
		seriesIDs:     item.ExternalIDs,
	}
	return item, info, true
}

// itemFromPersisted rebuilds an equivalent VirtualItem from the host record
// plus its decoded placeholder. The placeholder's external key addresses the
// series for episodic kinds, so it lands in ExternalIDs alongside whatever
// provider ids the host record stored.
func itemFromPersisted(record models.PersistedItem, placeholder identitypkg.Placeholder) models.VirtualItem {
	ids := make(map[string]string, len(record.ExternalIDs)+1)
	for provider, id := range record.ExternalIDs {
		ids[provider] = id
	}
	keyProvider := models.ProviderTmdb
	if placeholder.Kind == identitypkg.PlaceholderAnime {
		keyProvider = models.ProviderAniList
	}
	if ids[keyProvider] == "" {
		ids[keyProvider] = placeholder.ExternalKey
	}

	kind := record.Kind
	if kind == "" {
		kind = models.KindMovie
		if placeholder.Episodic() {
			kind = models.KindEpisode
		}
	}

	item := models.VirtualItem{
		Identity:     record.Identity,
		Kind:         kind,
		DisplayName:  record.Name,
		ExternalIDs:  ids,
		PremiereDate: record.PremiereDate,
		RuntimeTicks: record.RuntimeTicks,
	}
	if placeholder.Episodic() {
		item.SeasonIndex = placeholder.Season
		item.EpisodeIndex = placeholder.Episode
		if item.SeasonIndex == 0 && record.SeasonIndex > 0 {
			item.SeasonIndex = record.SeasonIndex
		}
		if item.EpisodeIndex == 0 && record.EpisodeIndex > 0 {
			item.EpisodeIndex = record.EpisodeIndex
		}
	}
	return item
}

// seriesFor resolves the series record for an episode through the catalog
// store's one-directional index. For placeholder-backed episodes the decoded
// external key already addresses the series, so a synthetic series item
// carrying those ids is enough.
func (e *Engine) seriesFor(item models.VirtualItem, persisted persistedInfo) *models.VirtualItem {
	if item.Kind != models.KindEpisode {
		return nil
	}
	if item.SeriesIdentity != "" {
		if series, ok := e.store.GetItem(item.SeriesIdentity); ok {
			return &series
		}
	}
	if persisted.isPersisted {
		return &models.VirtualItem{
			Identity:    item.SeriesIdentity,
			Kind:        models.KindSeries,
			DisplayName: item.DisplayName,
			ExternalIDs: persisted.seriesIDs,
		}
	}
	return nil
}

// buildCandidates executes the configured provider strategy.
func (e *Engine) buildCandidates(ctx context.Context, settings config.Settings, item models.VirtualItem, series *models.VirtualItem) ([]candidate, error) {
	switch settings.Streaming.Provider {
	case config.ProviderNone, "":
		return nil, fmt.Errorf("no stream provider configured")

	case config.ProviderDirect:
		candidates, err := buildDirectCandidates(settings, item, series)
		if err != nil {
			return nil, err
		}
		for i := range candidates {
			candidates[i].sourceID = identitypkg.VariantID(item.Identity, candidates[i].variantKey)
		}
		return candidates, nil

	case config.ProviderRemoteLookup:
		if e.deps.Remote == nil {
			return nil, fmt.Errorf("remote lookup not configured")
		}
		order := settings.Streaming.PreferredIDs.Movie
		if item.Kind == models.KindEpisode {
			order = settings.Streaming.PreferredIDs.Episode
		}
		preferred, ok := preferredID(order, item, series)
		if !ok {
			return nil, fmt.Errorf("no usable external id for remote lookup")
		}
		url, filename, err := e.deps.Remote.Lookup(ctx, preferred.Value, item.SeasonIndex, item.EpisodeIndex)
		if err != nil {
			return nil, err
		}
		return []candidate{{
			sourceID:     identitypkg.VariantID(item.Identity, ""),
			url:          url,
			filenameHint: filename,
		}}, nil

	case config.ProviderAggregator:
		if e.deps.Aggregator == nil {
			return nil, fmt.Errorf("aggregator not configured")
		}
		imdb := imdbID(item, series)
		if imdb == "" {
			return nil, fmt.Errorf("aggregator requires an imdb id")
		}
		streams, err := e.deps.Aggregator.Streams(ctx, imdb, item.SeasonIndex, item.EpisodeIndex)
		if err != nil {
			return nil, err
		}
		candidates := make([]candidate, 0, len(streams))
		for _, stream := range streams {
			key := streamVariantKey(stream.URL)
			candidates = append(candidates, candidate{
				sourceID:     identitypkg.VariantID(item.Identity, key),
				variantKey:   key,
				url:          stream.URL,
				filenameHint: stream.FilenameHint,
			})
		}
		rankCandidates(candidates, settings.Streaming.AudioTracks)
		return candidates, nil

	default:
		return nil, fmt.Errorf("unknown stream provider %q", settings.Streaming.Provider)
	}
}

func containsSource(candidates []candidate, sourceID string) bool {
	for _, c := range candidates {
		if c.sourceID == sourceID {
			return true
		}
	}
	return false
}

// filterSelected narrows the candidate list to an explicitly selected variant.
// A stale selection that matches nothing keeps the full list: never hard-fail
// just because the selection aged out.
func filterSelected(candidates []candidate, selected string) []candidate {
	if selected == "" || len(candidates) <= 1 {
		return candidates
	}
	for _, c := range candidates {
		if c.sourceID == selected || strings.EqualFold(c.variantKey, selected) {
			return []candidate{c}
		}
	}
	return candidates
}

// determineRuntime walks the fallback chain: known value, metadata API, HLS
// probe, per-kind configured default. First success wins; later steps are
// never attempted once a value is found.
func (e *Engine) determineRuntime(ctx context.Context, settings config.Settings, item models.VirtualItem, series *models.VirtualItem, candidates []candidate) int64 {
	if item.RuntimeTicks > 0 {
		return item.RuntimeTicks
	}

	if e.deps.Runtime != nil {
		var (
			ticks int64
			ok    bool
		)
		if item.Kind == models.KindEpisode {
			ids := item.ExternalIDs
			if series != nil {
				ids = series.ExternalIDs
			}
			ticks, ok = e.deps.Runtime.EpisodeRuntimeTicks(ctx, ids, item.SeasonIndex, item.EpisodeIndex)
		} else {
			ticks, ok = e.deps.Runtime.MovieRuntimeTicks(ctx, item.ExternalIDs)
		}
		if ok && ticks > 0 {
			return ticks
		}
	}

	if settings.Streaming.ProbeHLS && e.deps.Prober != nil {
		for _, c := range candidates {
			if ClassifyContainer(c.url, c.filenameHint) != ContainerHLS {
				continue
			}
			if ticks, ok := e.deps.Prober.ProbeDurationTicks(ctx, c.url); ok && ticks > 0 {
				return ticks
			}
			break
		}
	}

	if item.Kind == models.KindEpisode {
		return models.TicksFromMinutes(settings.Playback.EpisodeRuntimeMinutes)
	}
	return models.TicksFromMinutes(settings.Playback.MovieRuntimeMinutes)
}

// runtimeReconcileThreshold is how far the discovered runtime must drift from
// the host's stored value before we write it back.
const runtimeReconcileThreshold = time.Minute

// reconcileRuntime refreshes the cached item and, for persisted items, writes
// a materially different runtime back into the host's record before the
// response is returned: the host's progress tracking reads its own stored
// value, not this response.
func (e *Engine) reconcileRuntime(ctx context.Context, item models.VirtualItem, persisted persistedInfo, runtimeTicks int64) {
	if runtimeTicks <= 0 {
		return
	}
	if item.RuntimeTicks != runtimeTicks {
		item.RuntimeTicks = runtimeTicks
		if _, cached := e.store.GetItem(item.Identity); cached {
			e.store.PutItem(item)
		}
	}
	if !persisted.isPersisted || e.deps.Library == nil {
		return
	}
	drift := models.TicksToDuration(runtimeTicks - persisted.storedTicks)
	if drift < 0 {
		drift = -drift
	}
	if drift < runtimeReconcileThreshold {
		return
	}
	if err := e.deps.Library.UpdateRuntime(ctx, item.Identity, runtimeTicks); err != nil {
		log.Printf("[resolve] runtime write-back for %s failed: %v", item.Identity, err)
	}
}

// updateVariants records the full candidate set on the cached item, so later
// reads of the item see the variants discovered by the latest resolution.
func (e *Engine) updateVariants(item models.VirtualItem, candidates []candidate, runtimeTicks int64, tracks []models.SubtitleTrack) {
	cached, ok := e.store.GetItem(item.Identity)
	if !ok {
		return
	}
	variants := make([]models.MediaSourceDescriptor, 0, len(candidates))
	for _, c := range candidates {
		variants = append(variants, models.MediaSourceDescriptor{
			SourceIdentity: c.sourceID,
			VariantKey:     c.variantKey,
			URL:            c.url,
			Container:      ClassifyContainer(c.url, c.filenameHint),
			FilenameHint:   c.filenameHint,
			RuntimeTicks:   runtimeTicks,
			SubtitleTracks: tracks,
		})
	}
	cached.Variants = variants
	e.store.PutItem(cached)
}

// submitEscalation fires the downstream acquisition request at most once per
// escalation-marker TTL. Submission failures are logged and swallowed; they
// must never delay or fail the playback response.
func (e *Engine) submitEscalation(item models.VirtualItem) {
	if e.store.Escalated(item.Identity) {
		return
	}
	e.store.MarkEscalated(item.Identity)
	if e.deps.Tasks == nil || e.deps.Escalator == nil {
		return
	}
	submitted := e.deps.Tasks.Submit("escalate "+item.Identity, func(ctx context.Context) error {
		return e.deps.Escalator.RequestAcquisition(ctx, item)
	})
	if !submitted {
		log.Printf("[resolve] escalation for %s dropped, queue full", item.Identity)
	}
}

func variantLabel(item models.VirtualItem, variantKey string) string {
	if variantKey == "" {
		return item.DisplayName
	}
	return strings.ToUpper(variantKey)
}
