package app

import (
	"time"

	"corpora/api/internal/annotate"
	"corpora/api/internal/store"
)

const dateLayout = "2006-01-02"

func editionView(item store.Edition) map[string]any {
	return map[string]any{
		"id":          item.ID,
		"lang":        item.Lang,
		"name":        item.Name,
		"pictureURL":  item.PictureURL,
		"description": item.Description,
	}
}

func articleView(item store.Article, edition store.Edition, cases []store.MetaphorCase) map[string]any {
	metaphors := make([]map[string]any, 0, len(cases))
	for _, c := range cases {
		metaphors = append(metaphors, caseView(c))
	}
	return map[string]any{
		"id":               item.ID,
		"heading":          item.Heading,
		"body":             item.Body,
		"url":              item.URL,
		"publication_date": item.PublicationDate.Format(dateLayout),
		"fullyAnnotated":   item.FullyAnnotated,
		"tone":             item.Tone,
		"comment":          item.Comment,
		"edition":          editionView(edition),
		"metaphors":        metaphors,
		"updatedAt":        item.UpdatedAt.UTC().Format(time.RFC3339),
	}
}

func caseView(item store.MetaphorCase) map[string]any {
	return map[string]any{
		"id":         item.ID,
		"location":   item.Location,
		"char_range": annotate.Range{item.RangeStart, item.RangeEnd},
		"text":       item.Text,
		"comment":    item.Comment,
		"metaphorModel": map[string]any{
			"id":   item.ModelID,
			"name": item.ModelName,
		},
		"sourceArticleId": item.ArticleID,
		"editionId":       item.EditionID,
		"editionName":     item.EditionName,
		"lang":            item.Lang,
	}
}

func modelView(item store.MetaphorModel) map[string]any {
	return map[string]any{
		"id":        item.ID,
		"name":      item.Name,
		"comment":   item.Comment,
		"caseCount": item.CaseCount,
	}
}

func commitView(item store.CommitInfo) map[string]any {
	return map[string]any{
		"hash":      item.Hash,
		"message":   item.Message,
		"author":    item.Author,
		"createdAt": item.CreatedAt.UTC().Format(time.RFC3339),
	}
}

// marksFor converts persisted cases into renderer marks.
func marksFor(cases []store.MetaphorCase) []annotate.Mark {
	marks := make([]annotate.Mark, 0, len(cases))
	for _, c := range cases {
		marks = append(marks, annotate.Mark{
			ID:       c.ID,
			Location: annotate.Location(c.Location),
			Range:    annotate.Range{c.RangeStart, c.RangeEnd},
		})
	}
	return marks
}
