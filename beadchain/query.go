package beadchain

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Filter narrows a query over beads. Zero-value fields are unconstrained.
type Filter struct {
	BeadType      BeadType
	TemporalClass TemporalClass
	TokenMint     string
	Tag           string
	Status        BeadStatus
	WorldTimeFrom *time.Time
	WorldTimeTo   *time.Time
}

// Query returns every bead matching the given filter, ordered by knowledge
// time. This realizes the "by type, by mint, by temporal class, by tag, by
// status ... world-time range" query surface of spec.md section 4.4.
func (s *Store) Query(f Filter) ([]*Bead, error) {
	q := s.db.Model(&beadRow{})
	if f.BeadType != "" {
		q = q.Where("bead_type = ?", string(f.BeadType))
	}
	if f.TemporalClass != "" {
		q = q.Where("temporal_class = ?", string(f.TemporalClass))
	}
	if f.TokenMint != "" {
		q = q.Where("token_mint = ?", f.TokenMint)
	}
	if f.Tag != "" {
		q = q.Where("tag = ?", f.Tag)
	}
	if f.Status != "" {
		q = q.Where("status = ?", string(f.Status))
	}
	if f.WorldTimeFrom != nil {
		q = q.Where("world_time_to >= ?", f.WorldTimeFrom.UTC())
	}
	if f.WorldTimeTo != nil {
		q = q.Where("world_time_from <= ?", f.WorldTimeTo.UTC())
	}

	var rows []beadRow
	if err := q.Order("knowledge_time ASC, rowid ASC").Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("beadchain: query beads: %w", err)
	}
	return s.fromRows(rows)
}

// ShadowField returns every PROPOSAL_REJECTED bead, optionally filtered by
// rejection category and a knowledge-time window. This is the query surface
// spec.md section 307 names "fuel for future skill distillation".
func (s *Store) ShadowField(rejectionCategory string, since, until *time.Time) ([]*Bead, error) {
	q := s.db.Model(&beadRow{}).Where("bead_type = ?", string(BeadProposalRejected))
	if since != nil {
		q = q.Where("knowledge_time >= ?", since.UTC())
	}
	if until != nil {
		q = q.Where("knowledge_time <= ?", until.UTC())
	}
	var rows []beadRow
	if err := q.Order("knowledge_time ASC, rowid ASC").Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("beadchain: query shadow field: %w", err)
	}
	beads, err := s.fromRows(rows)
	if err != nil {
		return nil, err
	}
	if rejectionCategory == "" {
		return beads, nil
	}
	filtered := beads[:0]
	for _, b := range beads {
		content, ok := b.Content.(ProposalRejectedContent)
		if ok && content.RejectionCategory == rejectionCategory {
			filtered = append(filtered, b)
		}
	}
	return filtered, nil
}

// KnowledgeTimeAt returns every bead whose knowledge time is less than or
// equal to asOf, i.e. the view of the chain as it was known at that instant.
func (s *Store) KnowledgeTimeAt(asOf time.Time) ([]*Bead, error) {
	var rows []beadRow
	err := s.db.Where("knowledge_time <= ?", asOf.UTC()).Order("knowledge_time ASC, rowid ASC").Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("beadchain: query knowledge-time-at: %w", err)
	}
	return s.fromRows(rows)
}

// Ancestors walks a bead's lineage edges backward up to maxDepth hops,
// returning every ancestor bead encountered. maxDepth <= 0 means unbounded.
func (s *Store) Ancestors(id uuid.UUID, maxDepth int) ([]*Bead, error) {
	return s.walkLineage(id, maxDepth, true)
}

// Descendants walks forward from a bead to every bead that names it (or a
// descendant of it) as a lineage parent, up to maxDepth hops.
func (s *Store) Descendants(id uuid.UUID, maxDepth int) ([]*Bead, error) {
	return s.walkLineage(id, maxDepth, false)
}

func (s *Store) walkLineage(start uuid.UUID, maxDepth int, backward bool) ([]*Bead, error) {
	visited := map[string]bool{start.String(): true}
	frontier := []string{start.String()}
	var collected []string

	for depth := 0; len(frontier) > 0 && (maxDepth <= 0 || depth < maxDepth); depth++ {
		var edges []lineageRow
		var err error
		if backward {
			err = s.db.Where("bead_id IN ?", frontier).Find(&edges).Error
		} else {
			err = s.db.Where("parent_id IN ?", frontier).Find(&edges).Error
		}
		if err != nil {
			return nil, fmt.Errorf("beadchain: walk lineage: %w", err)
		}
		var next []string
		for _, e := range edges {
			id := e.ParentID
			if !backward {
				id = e.BeadID
			}
			if !visited[id] {
				visited[id] = true
				next = append(next, id)
				collected = append(collected, id)
			}
		}
		frontier = next
	}
	if len(collected) == 0 {
		return nil, nil
	}

	var rows []beadRow
	if err := s.db.Where("bead_id IN ?", collected).Order("knowledge_time ASC, rowid ASC").Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("beadchain: load lineage beads: %w", err)
	}
	return s.fromRows(rows)
}

// RefineryLatencyBucket names one bucket of the refinery-latency histogram.
type RefineryLatencyBucket struct {
	Label string
	Count int64
}

// RefineryLatencyHistogram buckets knowledge_time_recorded_at minus
// world_time_valid_to across every OBSERVATION bead, the lag between when
// something happened in the world and when the system learned of it.
func (s *Store) RefineryLatencyHistogram() ([]RefineryLatencyBucket, error) {
	var rows []beadRow
	err := s.db.Where("temporal_class = ? AND world_time_to IS NOT NULL", string(TemporalObservation)).Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("beadchain: load observation beads: %w", err)
	}

	buckets := []RefineryLatencyBucket{
		{Label: "<1s"}, {Label: "<10s"}, {Label: "<1m"},
		{Label: "<10m"}, {Label: "<1h"}, {Label: ">=1h"},
	}
	for _, row := range rows {
		latency := row.KnowledgeTime.Sub(*row.WorldTimeTo)
		idx := bucketFor(latency)
		buckets[idx].Count++
	}
	return buckets, nil
}

func bucketFor(d time.Duration) int {
	switch {
	case d < time.Second:
		return 0
	case d < 10*time.Second:
		return 1
	case d < time.Minute:
		return 2
	case d < 10*time.Minute:
		return 3
	case d < time.Hour:
		return 4
	default:
		return 5
	}
}

func (s *Store) fromRows(rows []beadRow) ([]*Bead, error) {
	beads := make([]*Bead, len(rows))
	for i, row := range rows {
		bead, err := s.fromRow(row)
		if err != nil {
			return nil, err
		}
		beads[i] = bead
	}
	return beads, nil
}
