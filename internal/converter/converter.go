// =============================================================================
// DUIMP Flattener - Batch Pipeline
// =============================================================================
//
// This module orchestrates one batch: a decoded item list (or one header)
// goes in, a populated SQLite table carrying its own JSON snapshot comes out.
//
// ITEM PIPELINE:
//   1. Discover the tax types of the whole batch
//   2. Build the column set and create the table
//   3. Group items into additions
//   4. Extract, apply field rules and insert every item
//   5. Compute the weight percentage of every row
//   6. Serialize the table and store the snapshot on every row
//
// HEADER PIPELINE:
//   1. Extract the header and merge the manually supplied fields
//   2. Apply field rules
//   3. Create the header table and insert the row
//   4. Serialize the table and store the snapshot
//
// A failing insert is reported in the batch report and the batch goes on.
// Any other stage failure aborts the run.
//
// =============================================================================

package converter

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/tiagojmoraes/projeto-duimp/internal/aggregate"
	"github.com/tiagojmoraes/projeto-duimp/internal/config"
	"github.com/tiagojmoraes/projeto-duimp/internal/declaration"
	"github.com/tiagojmoraes/projeto-duimp/internal/flatten"
	"github.com/tiagojmoraes/projeto-duimp/internal/grouping"
	"github.com/tiagojmoraes/projeto-duimp/internal/schema"
	"github.com/tiagojmoraes/projeto-duimp/internal/snapshot"
	"github.com/tiagojmoraes/projeto-duimp/internal/storage"
	"github.com/tiagojmoraes/projeto-duimp/internal/types"
)

// =============================================================================
// BATCH REPORT
// =============================================================================

// BatchReport describes the outcome of one batch.
type BatchReport struct {
	// BatchID identifies the run in logs and output file names.
	BatchID uuid.UUID

	// Table is the table the batch wrote to.
	Table string

	// ItemsRead is the number of records handed to the pipeline.
	ItemsRead int

	// Inserted is the number of rows written successfully.
	Inserted int

	// Additions is the number of additions the items were grouped into.
	Additions int

	// TaxTypes are the tax types that produced dynamic columns.
	TaxTypes []string

	// Errors holds the per-row failures.
	Errors *ErrorCollection

	// Aggregation is the percentage pass result. Zero for header batches.
	Aggregation aggregate.Result

	// Stats summarises the item table after the batch. Nil for header
	// batches or when it could not be computed.
	Stats *storage.Stats

	// Snapshot is the document stored in the snapshot column.
	Snapshot []byte

	// Duration is the wall time of the batch.
	Duration time.Duration
}

// Failed returns the number of rows that could not be written.
func (r *BatchReport) Failed() int {
	return r.Errors.TotalCount()
}

// =============================================================================
// PIPELINE
// =============================================================================

// ProgressFunc is called after each item with the number of items handled
// so far and the batch size.
type ProgressFunc func(done, total int)

// Pipeline runs batches against one store.
type Pipeline struct {
	store       *storage.Store
	cfg         *config.MainConfig
	logger      *zap.Logger
	serializer  *snapshot.Serializer
	itemRules   *Transformer
	headerRules *Transformer
	progress    ProgressFunc
}

// New creates a Pipeline. The field rules of cfg are checked here.
//
// PARAMETERS:
//   - store: the open SQLite store
//   - cfg: the validated main configuration
//   - logger: may be nil
//
// RETURNS:
//   - the pipeline, or an error when a field rule cannot be compiled
func New(store *storage.Store, cfg *config.MainConfig, logger *zap.Logger) (*Pipeline, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	itemRules, err := NewTransformer(cfg.ItemRules)
	if err != nil {
		return nil, fmt.Errorf("item rules: %w", err)
	}
	headerRules, err := NewTransformer(cfg.HeaderRules)
	if err != nil {
		return nil, fmt.Errorf("header rules: %w", err)
	}

	return &Pipeline{
		store:       store,
		cfg:         cfg,
		logger:      logger,
		serializer:  snapshot.New(cfg.SnapshotColumn),
		itemRules:   itemRules,
		headerRules: headerRules,
	}, nil
}

// OnProgress registers a callback for the insert stage.
func (p *Pipeline) OnProgress(fn ProgressFunc) {
	p.progress = fn
}

func (p *Pipeline) newReport(table string, read int) *BatchReport {
	return &BatchReport{
		BatchID:   uuid.New(),
		Table:     table,
		ItemsRead: read,
		Errors:    NewErrorCollection(p.cfg.MaxReportedErrors),
	}
}

// =============================================================================
// ITEM BATCH
// =============================================================================

// RunItems loads one item list into the items table.
//
// An empty list still creates the table and returns an empty report. When
// items were given but none could be inserted, the report is returned with
// ErrNoRowsInserted.
func (p *Pipeline) RunItems(ctx context.Context, items []declaration.Item) (*BatchReport, error) {
	start := time.Now()
	report := p.newReport(p.cfg.ItemsTable, len(items))
	log := p.logger.With(
		zap.String("batch", report.BatchID.String()),
		zap.String("table", report.Table),
	)

	// =========================================================================
	// STAGE 1: DISCOVER
	// =========================================================================

	report.TaxTypes = schema.DiscoverTaxTypes(items)
	cols := schema.BuildItemColumns(p.cfg.SnapshotColumn, report.TaxTypes)
	log.Debug("tax types discovered",
		zap.Strings("tax_types", report.TaxTypes),
		zap.Int("columns", len(cols)),
	)

	// =========================================================================
	// STAGE 2: CREATE
	// =========================================================================

	table, err := p.store.CreateTable(ctx, report.Table, cols, p.cfg.Replace())
	if err != nil {
		return report, fmt.Errorf("create stage: %w", err)
	}

	// =========================================================================
	// STAGE 3: GROUP AND INSERT
	// =========================================================================

	additions := grouping.Group(items)
	report.Additions = len(additions)

	members := grouping.Flatten(additions)
	for i, m := range members {
		rec := flatten.ExtractItem(m.Item)
		rec[schema.ColumnAddition] = types.Integer(int64(m.AdditionNumber))
		rec[schema.ColumnIndexInAdd] = types.Integer(int64(m.IndexInAddition))
		rec[schema.ColumnGlobalIndex] = types.Integer(int64(m.GlobalIndex))

		p.insert(ctx, log, table, report, m.GlobalIndex, rec, p.itemRules)

		if p.progress != nil {
			p.progress(i+1, len(members))
		}
	}

	if report.Inserted == 0 {
		report.Duration = time.Since(start)
		if len(items) > 0 {
			return report, ErrNoRowsInserted
		}
		log.Info("empty batch")
		return report, nil
	}

	// =========================================================================
	// STAGE 4: AGGREGATE
	// =========================================================================

	report.Aggregation, err = aggregate.Run(ctx, table,
		schema.ColumnNetWeight, schema.ColumnWeightPercent, p.cfg.PercentagePrecision)
	if err != nil {
		return report, fmt.Errorf("aggregate stage: %w", err)
	}
	if report.Aggregation.Skipped {
		log.Warn("total net weight is zero, percentages left empty")
	}

	// =========================================================================
	// STAGE 5: SNAPSHOT
	// =========================================================================

	if err := p.storeSnapshot(ctx, table, report); err != nil {
		return report, err
	}

	if st, err := table.Stats(ctx); err != nil {
		log.Warn("failed to compute table stats", zap.Error(err))
	} else {
		report.Stats = &st
	}

	report.Duration = time.Since(start)
	log.Info("batch finished",
		zap.Int("read", report.ItemsRead),
		zap.Int("inserted", report.Inserted),
		zap.Int("failed", report.Failed()),
		zap.Int("additions", report.Additions),
		zap.Duration("duration", report.Duration),
	)
	return report, nil
}

// =============================================================================
// HEADER BATCH
// =============================================================================

// RunHeader loads one declaration header into the header table. manual
// carries the fields typed in by an operator (release date, gross weight)
// and overrides extracted values of the same name.
func (p *Pipeline) RunHeader(ctx context.Context, header declaration.Header, manual types.Record) (*BatchReport, error) {
	start := time.Now()
	report := p.newReport(p.cfg.HeaderTable, 1)
	log := p.logger.With(
		zap.String("batch", report.BatchID.String()),
		zap.String("table", report.Table),
	)

	rec := flatten.ExtractHeader(header)
	if n := rec.Get("duimpNumero"); n.IsNull() || n.String() == "" {
		return report, ErrIncompleteHeader
	}
	for k, v := range manual {
		rec[k] = v
	}

	table, err := p.store.CreateTable(ctx, report.Table, schema.HeaderColumns(p.cfg.SnapshotColumn), p.cfg.Replace())
	if err != nil {
		return report, fmt.Errorf("create stage: %w", err)
	}

	p.insert(ctx, log, table, report, 1, rec, p.headerRules)
	if report.Inserted == 0 {
		report.Duration = time.Since(start)
		return report, ErrNoRowsInserted
	}

	if err := p.storeSnapshot(ctx, table, report); err != nil {
		return report, err
	}

	report.Duration = time.Since(start)
	log.Info("header stored",
		zap.String("duimp", rec.Get("duimpNumero").String()),
		zap.Duration("duration", report.Duration),
	)
	return report, nil
}

// =============================================================================
// SHARED STAGES
// =============================================================================

// insert applies the rules to one record and writes it. Failures are
// recorded in the report.
func (p *Pipeline) insert(ctx context.Context, log *zap.Logger, table *storage.Table, report *BatchReport, row int, rec types.Record, rules *Transformer) {
	if err := rules.Apply(rec); err != nil {
		rowErr := RowError{Row: row, Code: ErrCodeTransform, Message: err.Error()}
		var fe *FieldError
		if errors.As(err, &fe) {
			rowErr.Column = fe.Field
		}
		report.Errors.Add(rowErr)
		log.Warn("row rejected", zap.Int("row", row), zap.Error(err))
		return
	}

	if unknown := table.Unknown(rec); len(unknown) > 0 {
		log.Debug("fields without column dropped", zap.Int("row", row), zap.Strings("fields", unknown))
	}

	if _, err := table.Insert(ctx, rec); err != nil {
		report.Errors.Add(RowError{
			Row:     row,
			Code:    ErrCodeInsert,
			Message: err.Error(),
			Column:  storage.ConstraintColumn(err),
		})
		log.Warn("row insert failed", zap.Int("row", row), zap.Error(err))
		return
	}
	report.Inserted++
}

func (p *Pipeline) storeSnapshot(ctx context.Context, table *storage.Table, report *BatchReport) error {
	doc, err := p.serializer.Snapshot(ctx, table)
	if err != nil {
		return fmt.Errorf("snapshot stage: %w", err)
	}
	if !table.HasColumn(p.cfg.SnapshotColumn) {
		p.logger.Warn("table has no snapshot column, snapshot not stored",
			zap.String("table", table.Name()),
			zap.String("column", p.cfg.SnapshotColumn),
		)
		report.Snapshot = doc
		return nil
	}
	if _, err := table.SetSnapshot(ctx, p.cfg.SnapshotColumn, doc); err != nil {
		return fmt.Errorf("snapshot stage: %w", err)
	}
	report.Snapshot = doc
	return nil
}
