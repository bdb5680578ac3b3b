package lexical

import (
	"fmt"
	"strconv"

	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/mapping"
	blevequery "github.com/blevesearch/bleve/v2/search/query"

	"termsearch/internal/domain"
)

// Index is an in-memory keyword index over sections, keyed by section id.
type Index struct {
	index bleve.Index
}

// Hit is one keyword match: the section row and its bleve score.
type Hit struct {
	Row   int
	Score float64
}

type sectionDoc struct {
	Title   string `json:"title"`
	Content string `json:"content"`
}

// Build indexes the title and content of every section.
func Build(sections []domain.Section) (*Index, error) {
	index, err := bleve.NewMemOnly(buildIndexMapping())
	if err != nil {
		return nil, fmt.Errorf("create bleve index: %w", err)
	}
	batch := index.NewBatch()
	for _, sec := range sections {
		if err := batch.Index(strconv.Itoa(sec.SectionID), sectionDoc{Title: sec.Title, Content: sec.Content}); err != nil {
			index.Close()
			return nil, fmt.Errorf("index section %d: %w", sec.SectionID, err)
		}
	}
	if err := index.Batch(batch); err != nil {
		index.Close()
		return nil, fmt.Errorf("index sections: %w", err)
	}
	return &Index{index: index}, nil
}

// Search matches the query against content and, with a higher boost, titles.
func (x *Index) Search(query string, k int) ([]Hit, error) {
	if k <= 0 || query == "" {
		return nil, nil
	}
	contentQuery := bleve.NewMatchQuery(query)
	contentQuery.SetField("content")
	contentQuery.SetBoost(1.0)
	titleQuery := bleve.NewMatchQuery(query)
	titleQuery.SetField("title")
	titleQuery.SetBoost(2.0)
	disjunction := bleve.NewDisjunctionQuery([]blevequery.Query{contentQuery, titleQuery}...)

	req := bleve.NewSearchRequestOptions(disjunction, k, 0, false)
	res, err := x.index.Search(req)
	if err != nil {
		return nil, err
	}
	hits := make([]Hit, 0, len(res.Hits))
	for _, h := range res.Hits {
		row, err := strconv.Atoi(h.ID)
		if err != nil {
			continue
		}
		hits = append(hits, Hit{Row: row, Score: h.Score})
	}
	return hits, nil
}

// Close releases the underlying bleve index.
func (x *Index) Close() error {
	if x == nil || x.index == nil {
		return nil
	}
	return x.index.Close()
}

func buildIndexMapping() mapping.IndexMapping {
	indexMapping := bleve.NewIndexMapping()
	indexMapping.DefaultAnalyzer = "en"
	indexMapping.DefaultField = "content"

	docMapping := bleve.NewDocumentMapping()

	contentField := bleve.NewTextFieldMapping()
	contentField.Store = false
	contentField.Index = true
	docMapping.AddFieldMappingsAt("content", contentField)

	titleField := bleve.NewTextFieldMapping()
	titleField.Store = false
	titleField.Index = true
	docMapping.AddFieldMappingsAt("title", titleField)

	indexMapping.DefaultMapping = docMapping
	return indexMapping
}
