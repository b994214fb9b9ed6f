// Package engine wires storage, embedding, ingestion, ranking and assembly
// into one facade built from a config.Config.
//
// Vector search is decided once by New and never changes for the life of
// the Engine:
//
//	e, err := engine.New(ctx, cfg, engine.WithLogger(logger))
//	if err != nil {
//	    return err
//	}
//	defer e.Close()
//
//	if !e.VectorEnabled() {
//	    logger.Warn().Str("reason", e.Capability().Reason).Msg("full-text only")
//	}
//
// Writes through AddDocuments and RemoveVersion drop the query cache, so a
// search issued after a write always sees it.
package engine
