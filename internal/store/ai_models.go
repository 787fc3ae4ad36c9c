package store

import "database/sql"

// AIModel records a known model's capabilities — context window and, for
// embedding models, dimension — so the vector index and prompt orchestrator
// can validate a configured model without a network round trip.
type AIModel struct {
	Name               string
	Provider           string
	ContextWindow      int
	EmbeddingDimension *int
	ConfigJSON         string
}

func (AIModel) TableName() string { return "ai_models" }

var aiModelColumns = []string{"name", "provider", "context_window", "embedding_dimension", "config_json"}

func scanAIModel(row Scanner_Row) (AIModel, error) {
	var m AIModel
	var dim sql.NullInt64
	var config sql.NullString
	if err := row.Scan(&m.Name, &m.Provider, &m.ContextWindow, &dim, &config); err != nil {
		return m, err
	}
	if dim.Valid {
		d := int(dim.Int64)
		m.EmbeddingDimension = &d
	}
	m.ConfigJSON = config.String
	return m, nil
}

func bindAIModel(m AIModel) []any {
	var dim any
	if m.EmbeddingDimension != nil {
		dim = *m.EmbeddingDimension
	}
	return []any{m.Name, m.Provider, m.ContextWindow, dim, m.ConfigJSON}
}

// AIModelRepository is the AIModels specialization.
type AIModelRepository struct {
	*Repository[AIModel]
}

func (s *Store) AIModels() *AIModelRepository {
	return &AIModelRepository{
		Repository: NewRepository(s.db, "ai_models", "name", aiModelColumns, scanAIModel, bindAIModel),
	}
}
