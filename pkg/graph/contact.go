package graph

import (
	"context"
	"fmt"

	"github.com/Gobusters/ectologger"

	"github.com/Ramsey-B/fern/pkg/identity"
	"github.com/Ramsey-B/fern/pkg/models"
	"github.com/Ramsey-B/fern/pkg/tracing"
)

const (
	upsertContactsCypher = `
		UNWIND $contacts AS data
		MERGE (c:Contact {id: data.id})
		SET c += data.props
	`
	unlinkContactsCypher = `
		UNWIND $ids AS id
		MATCH (c:Contact {id: id})-[old:LINKED_TO]->()
		DELETE old
	`
	linkContactsCypher = `
		UNWIND $links AS link
		MATCH (c:Contact {id: link.id})
		MATCH (p:Contact {id: link.primary_id})
		MERGE (c)-[:LINKED_TO]->(p)
	`
)

// StatementWriter is satisfied by *Client
type StatementWriter interface {
	WriteStatements(ctx context.Context, statements []Statement) error
}

// Mirror keeps a (:Contact)-[:LINKED_TO]->(:Contact) copy of every cluster a
// resolution touched. Each secondary has exactly one outgoing edge.
type Mirror struct {
	writer StatementWriter
	logger ectologger.Logger
}

func NewMirror(writer StatementWriter, logger ectologger.Logger) *Mirror {
	return &Mirror{
		writer: writer,
		logger: logger,
	}
}

func (m *Mirror) Name() string {
	return "graph"
}

func (m *Mirror) Observe(ctx context.Context, event identity.Event) error {
	if event.Err != nil || event.Resolution == nil {
		return nil
	}

	statements := ContactStatements(event.Resolution)
	if len(statements) == 0 {
		return nil
	}

	ctx, span := tracing.StartSpan(ctx, "graph.Mirror.Observe")
	defer span.End()

	log := m.logger.WithContext(ctx).WithField("primary_contact_id", event.Resolution.Primary.ID)
	if err := m.writer.WriteStatements(ctx, statements); err != nil {
		log.WithError(err).Error("Failed to mirror contacts to graph")
		return fmt.Errorf("failed to mirror contacts to graph: %w", err)
	}

	log.Debug("Mirrored contacts to graph")
	return nil
}

// ContactStatements returns the writes for one resolution: upsert the primary
// and every written contact, drop their old edges, then link each secondary
// to the primary. A read-only resolution yields none.
func ContactStatements(res *identity.Resolution) []Statement {
	written := make([]models.Contact, 0, len(res.Created)+len(res.Demoted)+len(res.Relinked))
	written = append(written, res.Created...)
	written = append(written, res.Demoted...)
	written = append(written, res.Relinked...)
	if len(written) == 0 {
		return nil
	}

	nodes := []map[string]any{contactNode(res.Primary)}
	ids := []any{res.Primary.ID}
	links := []map[string]any{}
	for _, c := range written {
		if c.ID == res.Primary.ID {
			continue
		}
		nodes = append(nodes, contactNode(c))
		ids = append(ids, c.ID)
		if !c.IsPrimary() && c.LinkedID != nil {
			links = append(links, map[string]any{
				"id":         c.ID,
				"primary_id": *c.LinkedID,
			})
		}
	}

	statements := []Statement{
		{Cypher: upsertContactsCypher, Params: map[string]any{"contacts": nodes}},
		{Cypher: unlinkContactsCypher, Params: map[string]any{"ids": ids}},
	}
	if len(links) > 0 {
		statements = append(statements, Statement{Cypher: linkContactsCypher, Params: map[string]any{"links": links}})
	}
	return statements
}

func contactNode(c models.Contact) map[string]any {
	props := map[string]any{
		"link_precedence": string(c.LinkPrecedence),
		"created_at":      c.CreatedAt.UTC().Format("2006-01-02T15:04:05Z"),
		"updated_at":      c.UpdatedAt.UTC().Format("2006-01-02T15:04:05Z"),
		"email":           nil,
		"phone_number":    nil,
	}
	if c.Email != nil {
		props["email"] = *c.Email
	}
	if c.PhoneNumber != nil {
		props["phone_number"] = *c.PhoneNumber
	}
	return map[string]any{"id": c.ID, "props": props}
}
