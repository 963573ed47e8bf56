package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/pedsclinic/clinicadmin/internal/platform/listview"
	"github.com/pedsclinic/clinicadmin/internal/platform/render"
	"github.com/pedsclinic/clinicadmin/internal/platform/store"
)

// resourceSpec describes one backend collection exposed as a command group
// with list, get, create, update and delete.
type resourceSpec[T store.Entity] struct {
	use     string
	aliases []string
	short   string
	// audit is the resource name written to the journal, e.g. "lab/tests".
	audit string
	slice func() *store.Slice[T]
	// create replaces the plain slice create when the resource has required
	// fields or other create-time rules.
	create func(ctx context.Context, payload map[string]any) (*T, error)
	// view narrows and orders the fetched list.
	view        func(items []T, q listview.Query) []T
	listFlags   func(list *cobra.Command)
	defaultSort listview.Sort
	headers     []string
	row         func(T) []string
}

func (s resourceSpec[T]) table(items []T) render.Table {
	t := render.Table{Headers: s.headers}
	for _, it := range items {
		t.AddRow(s.row(it)...)
	}
	return t
}

func parseID(arg string) (int64, error) {
	id, err := strconv.ParseInt(arg, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid id %q", arg)
	}
	return id, nil
}

// payloadFlags reads a request body from --data or --file. Both accept JSON
// or YAML, since YAML is a superset of JSON.
type payloadFlags struct {
	data string
	file string
	set  []string
}

func (p *payloadFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVarP(&p.data, "data", "d", "", "Payload as JSON or YAML")
	cmd.Flags().StringVarP(&p.file, "file", "f", "", "Read the payload from a JSON or YAML file")
	cmd.Flags().StringArrayVar(&p.set, "set", nil, "Set a single field, key=value (repeatable)")
}

func (p *payloadFlags) load() (map[string]any, error) {
	raw := []byte(p.data)
	if p.file != "" {
		b, err := os.ReadFile(p.file)
		if err != nil {
			return nil, fmt.Errorf("read payload: %w", err)
		}
		raw = b
	}
	payload := map[string]any{}
	if len(strings.TrimSpace(string(raw))) > 0 {
		if err := yaml.Unmarshal(raw, &payload); err != nil {
			return nil, fmt.Errorf("parse payload: %w", err)
		}
	}
	for _, kv := range p.set {
		k, v, ok := strings.Cut(kv, "=")
		if !ok || k == "" {
			return nil, fmt.Errorf("--set expects key=value, got %q", kv)
		}
		var scalar any
		if err := yaml.Unmarshal([]byte(v), &scalar); err != nil || scalar == nil {
			scalar = v
		}
		payload[k] = scalar
	}
	return payload, nil
}

// loadList reads a list payload. A single object is accepted as a list of
// one.
func (p *payloadFlags) loadList() ([]map[string]any, error) {
	raw := []byte(p.data)
	if p.file != "" {
		b, err := os.ReadFile(p.file)
		if err != nil {
			return nil, fmt.Errorf("read payload: %w", err)
		}
		raw = b
	}
	var list []map[string]any
	if err := yaml.Unmarshal(raw, &list); err == nil && len(list) > 0 {
		return list, nil
	}
	var one map[string]any
	if err := yaml.Unmarshal(raw, &one); err != nil || len(one) == 0 {
		return nil, fmt.Errorf("expected a list of payloads")
	}
	return []map[string]any{one}, nil
}

// queryFlags binds the list view flags onto a listview.Query.
func queryFlags(cmd *cobra.Command, q *listview.Query, def listview.Sort) {
	cmd.Flags().StringVar(&q.Search, "search", "", "Case-insensitive search")
	cmd.Flags().StringVar(&q.Status, "status", "", "Filter by status (all keeps everything)")
	cmd.Flags().StringVar(&q.Category, "category", "", "Filter by category")
	cmd.Flags().StringVar(&q.Sort.Field, "sort", def.Field, "Sort field")
	cmd.Flags().StringVar((*string)(&q.Sort.Direction), "order", string(def.Direction), "Sort direction: asc or desc")
}

func newResourceCmd[T store.Entity](a *app, spec resourceSpec[T]) *cobra.Command {
	cmd := &cobra.Command{
		Use:     spec.use,
		Aliases: spec.aliases,
		Short:   spec.short,
	}

	var q listview.Query
	list := &cobra.Command{
		Use:   "list",
		Short: "List " + spec.use,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			items, err := spec.slice().FetchAll(cmd.Context())
			if err != nil {
				return err
			}
			if spec.view != nil {
				items = spec.view(items, q)
			}
			return a.print(items, func() render.Table { return spec.table(items) })
		},
	}
	queryFlags(list, &q, spec.defaultSort)
	if spec.listFlags != nil {
		spec.listFlags(list)
	}
	cmd.AddCommand(list)

	cmd.AddCommand(&cobra.Command{
		Use:   "get <id>",
		Short: "Show one record",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			item, err := spec.slice().FetchByID(cmd.Context(), id)
			if err != nil {
				return err
			}
			return a.print(item, func() render.Table { return spec.table([]T{*item}) })
		},
	})

	var createBody payloadFlags
	create := &cobra.Command{
		Use:   "create",
		Short: "Create a record",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			payload, err := createBody.load()
			if err != nil {
				return err
			}
			var item *T
			if spec.create != nil {
				item, err = spec.create(cmd.Context(), payload)
			} else {
				item, err = spec.slice().Create(cmd.Context(), payload)
			}
			var id int64
			if item != nil {
				id = (*item).EntityID()
			}
			a.record(cmd.Context(), http.MethodPost, spec.audit, id, "create", err)
			if err != nil {
				return err
			}
			return a.print(item, func() render.Table { return spec.table([]T{*item}) })
		},
	}
	createBody.register(create)
	cmd.AddCommand(create)

	var updateBody payloadFlags
	update := &cobra.Command{
		Use:   "update <id>",
		Short: "Update fields of a record",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			payload, err := updateBody.load()
			if err != nil {
				return err
			}
			item, err := spec.slice().Update(cmd.Context(), id, payload)
			a.record(cmd.Context(), http.MethodPatch, spec.audit, id, "update", err)
			if err != nil {
				return err
			}
			return a.print(item, func() render.Table { return spec.table([]T{*item}) })
		},
	}
	updateBody.register(update)
	cmd.AddCommand(update)

	cmd.AddCommand(&cobra.Command{
		Use:   "delete <id>",
		Short: "Delete a record",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			err = spec.slice().Delete(cmd.Context(), id)
			a.record(cmd.Context(), http.MethodDelete, spec.audit, id, "delete", err)
			if err != nil {
				return err
			}
			fmt.Fprintf(a.out, "Deleted %s %d.\n", spec.use, id)
			return nil
		},
	})

	return cmd
}
