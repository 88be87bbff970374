package session

import (
	"context"
	"encoding/json"

	"nopg/internal/ipc"
	"nopg/internal/logging"
	"nopg/internal/store"
)

type command func(ctx context.Context, args Args) (any, error)

// Handlers returns the RPC handler set served by the daemon.
func (m *Manager) Handlers() map[string]ipc.Handler {
	commands := map[string]command{
		"start":    m.cmdStart,
		"connect":  m.cmdConnect,
		"commit":   m.cmdCommit,
		"rollback": m.cmdRollback,
		"exit":     m.cmdExit,
		"status":   m.cmdStatus,
		"count":    m.cmdCount,
		"types":    m.cmdTypes,
		"type":     m.cmdType,
		"search":   m.cmdSearch,
		"create":   m.cmdCreate,
		"update":   m.cmdUpdate,
		"delete":   m.cmdDelete,
		"declare":  m.cmdDeclare,
		"on":       m.cmdOn,
		"once":     m.cmdOnce,
		"stop":     m.cmdStop,
	}
	handlers := make(map[string]ipc.Handler, len(commands))
	for name, cmd := range commands {
		handlers[name] = m.adapt(cmd)
	}
	return handlers
}

func (m *Manager) adapt(cmd command) ipc.Handler {
	return func(ctx context.Context, content json.RawMessage) (any, error) {
		args, err := decodeArgs(content)
		if err != nil {
			return nil, err
		}
		return m.Do(ctx, func(ctx context.Context) (any, error) {
			return cmd(ctx, args)
		})
	}
}

func (m *Manager) cmdStart(ctx context.Context, args Args) (any, error) {
	return m.open(ctx, true, args.PG, args.Traits)
}

func (m *Manager) cmdConnect(ctx context.Context, args Args) (any, error) {
	return m.open(ctx, false, args.PG, args.Traits)
}

func (m *Manager) cmdCommit(ctx context.Context, _ Args) (any, error) {
	return m.finalize(ctx, true)
}

func (m *Manager) cmdRollback(ctx context.Context, _ Args) (any, error) {
	return m.finalize(ctx, false)
}

func (m *Manager) cmdExit(ctx context.Context, _ Args) (any, error) {
	return m.exit(ctx)
}

func (m *Manager) cmdStatus(ctx context.Context, _ Args) (any, error) {
	return m.status(ctx)
}

func (m *Manager) cmdCount(ctx context.Context, args Args) (any, error) {
	handle, err := m.require()
	if err != nil {
		return nil, err
	}
	traits, err := store.ParseTraits(args.Traits)
	if err != nil {
		return nil, err
	}
	return handle.Count(ctx, args.arg(0), args.Where, traits)
}

func (m *Manager) cmdTypes(ctx context.Context, args Args) (any, error) {
	handle, err := m.require()
	if err != nil {
		return nil, err
	}
	types, err := handle.SearchTypes(ctx, args.Where)
	if err != nil {
		return nil, err
	}
	return publishTypes(types), nil
}

func (m *Manager) cmdType(ctx context.Context, args Args) (any, error) {
	handle, err := m.require()
	if err != nil {
		return nil, err
	}
	name, err := args.require(0, "type name")
	if err != nil {
		return nil, err
	}
	typ, err := handle.GetType(ctx, name)
	if err != nil {
		return nil, err
	}
	return Publish(typ.Map()), nil
}

func (m *Manager) search(ctx context.Context, handle store.Session, args Args) ([]*store.Document, error) {
	traits, err := store.ParseTraits(args.Traits)
	if err != nil {
		return nil, err
	}
	return handle.Search(ctx, args.arg(0), args.Where, traits)
}

// matches finds the documents a write applies to. Projection traits are
// dropped so writes always see whole documents.
func (m *Manager) matches(ctx context.Context, handle store.Session, args Args) ([]*store.Document, error) {
	traits, err := store.ParseTraits(args.Traits)
	if err != nil {
		return nil, err
	}
	traits.Fields, traits.Documents = nil, nil
	return handle.Search(ctx, args.arg(0), args.Where, traits)
}

func (m *Manager) cmdSearch(ctx context.Context, args Args) (any, error) {
	handle, err := m.require()
	if err != nil {
		return nil, err
	}
	docs, err := m.search(ctx, handle, args)
	if err != nil {
		return nil, err
	}
	return publishDocuments(docs), nil
}

func (m *Manager) cmdCreate(ctx context.Context, args Args) (any, error) {
	handle, err := m.require()
	if err != nil {
		return nil, err
	}
	typeName, err := args.require(0, "document type")
	if err != nil {
		return nil, err
	}
	doc, err := handle.Create(ctx, typeName, args.Set)
	if err != nil {
		return nil, err
	}
	return Publish(doc.Map()), nil
}

// cmdUpdate applies set to every match in search order and stops at the
// first failure.
func (m *Manager) cmdUpdate(ctx context.Context, args Args) (any, error) {
	handle, err := m.require()
	if err != nil {
		return nil, err
	}
	docs, err := m.matches(ctx, handle, args)
	if err != nil {
		return nil, err
	}
	updated := make([]*store.Document, 0, len(docs))
	for _, doc := range docs {
		set, err := mergeSet(doc.Content, args.Set)
		if err != nil {
			return nil, err
		}
		next, err := handle.Update(ctx, doc, set)
		if err != nil {
			return nil, err
		}
		updated = append(updated, next)
	}
	return publishDocuments(updated), nil
}

// cmdDelete removes every match in search order and stops at the first
// failure. It returns the number removed.
func (m *Manager) cmdDelete(ctx context.Context, args Args) (any, error) {
	handle, err := m.require()
	if err != nil {
		return nil, err
	}
	docs, err := m.matches(ctx, handle, args)
	if err != nil {
		return nil, err
	}
	for i, doc := range docs {
		if err := handle.Delete(ctx, doc); err != nil {
			m.logger.Info("delete aborted", logging.Int("deleted", i), logging.Int("matched", len(docs)))
			return nil, err
		}
	}
	return len(docs), nil
}

func (m *Manager) cmdDeclare(ctx context.Context, args Args) (any, error) {
	handle, err := m.require()
	if err != nil {
		return nil, err
	}
	name, err := args.require(0, "type name")
	if err != nil {
		return nil, err
	}
	typ, err := handle.DeclareType(ctx, name, args.Schema, args.Meta)
	if err != nil {
		return nil, err
	}
	return Publish(typ.Map()), nil
}

func (m *Manager) cmdOn(_ context.Context, args Args) (any, error) {
	return m.listen(args, false)
}

func (m *Manager) cmdOnce(_ context.Context, args Args) (any, error) {
	return m.listen(args, true)
}

func (m *Manager) listen(args Args, once bool) (any, error) {
	handle, err := m.require()
	if err != nil {
		return nil, err
	}
	event, err := args.require(0, "event name")
	if err != nil {
		return nil, err
	}
	cmd, err := args.require(1, "listener command")
	if err != nil {
		return nil, err
	}
	id, err := m.registry.Register(handle, handle.InTransaction(), event, cmd, args.Positional[2:], once)
	if err != nil {
		return nil, err
	}
	return id.String(), nil
}

func (m *Manager) cmdStop(_ context.Context, args Args) (any, error) {
	handle, err := m.require()
	if err != nil {
		return nil, err
	}
	token, err := args.require(0, "listener id")
	if err != nil {
		return nil, err
	}
	if err := m.registry.Unregister(handle, token); err != nil {
		return nil, err
	}
	return true, nil
}
