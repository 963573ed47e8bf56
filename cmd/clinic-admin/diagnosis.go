package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/pedsclinic/clinicadmin/internal/domain/diagnosis"
	"github.com/pedsclinic/clinicadmin/internal/platform/listview"
	"github.com/pedsclinic/clinicadmin/internal/platform/render"
	"github.com/pedsclinic/clinicadmin/internal/platform/store"
)

var diagnosisHeaders = []string{"ID", "TITLE", "CHILD", "DOCTOR", "STATUS", "SEVERITY", "DIAGNOSED"}

func diagnosisRow(d diagnosis.Diagnosis) []string {
	return []string{strconv.FormatInt(d.ID, 10), d.Title, render.Dash(d.ChildDetails.FullName()),
		render.Dash(d.DoctorDetails.FullName()), d.Status, render.Dash(d.Severity), formatDate(d.DateDiagnosed)}
}

func diagnosisTable(items []diagnosis.Diagnosis) render.Table {
	t := render.Table{Headers: diagnosisHeaders}
	for _, d := range items {
		t.AddRow(diagnosisRow(d)...)
	}
	return t
}

func diagnosisCmd(a *app) *cobra.Command {
	cmd := newResourceCmd(a, resourceSpec[diagnosis.Diagnosis]{
		use:     "diagnosis",
		aliases: []string{"diagnoses", "dx"},
		short:   "Diagnoses of children",
		audit:   "diagnoses",
		slice:   func() *store.Slice[diagnosis.Diagnosis] { return a.diagSvc.Diagnoses() },
		create: func(ctx context.Context, p map[string]any) (*diagnosis.Diagnosis, error) {
			return a.diagSvc.CreateDiagnosis(ctx, p)
		},
		view: func(items []diagnosis.Diagnosis, q listview.Query) []diagnosis.Diagnosis {
			return diagnosis.DiagnosesView(items, q, false).Items
		},
		defaultSort: diagnosis.DefaultSort,
		headers:     diagnosisHeaders,
		row:         diagnosisRow,
	})
	cmd.AddCommand(searchDiagnosesCmd(a), changeStatusCmd(a), diagnosisDetailCmd(a), diagnosisOverviewCmd(a))
	return cmd
}

func searchDiagnosesCmd(a *app) *cobra.Command {
	var q listview.Query
	cmd := &cobra.Command{
		Use:   "search <query>",
		Short: "Search diagnoses on the backend",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			results, err := a.diagSvc.Search(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			items := diagnosis.DiagnosesView(results, q, true).Items
			return a.print(items, func() render.Table { return diagnosisTable(items) })
		},
	}
	cmd.Flags().StringVar(&q.Status, "status", "", "Filter by status (all keeps everything)")
	cmd.Flags().StringVar(&q.Sort.Field, "sort", diagnosis.DefaultSort.Field, "Sort field: date_diagnosed, title or child")
	cmd.Flags().StringVar((*string)(&q.Sort.Direction), "order", string(diagnosis.DefaultSort.Direction), "Sort direction: asc or desc")
	return cmd
}

func changeStatusCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "status <id> <status|action>",
		Short: "Move a diagnosis to another status, e.g. RESOLVED or mark_chronic",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			action := args[1]
			if mapped, ok := diagnosis.ActionForStatus(action); ok {
				action = mapped
			}
			d, err := a.diagSvc.ChangeStatus(cmd.Context(), id, action)
			a.record(cmd.Context(), http.MethodPost, "diagnoses", id, action, err)
			if err != nil {
				return err
			}
			return a.print(d, func() render.Table { return diagnosisTable([]diagnosis.Diagnosis{*d}) })
		},
	}
}

func diagnosisDetailCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "detail <id>",
		Short: "Show a diagnosis with its treatments and attachments",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			d, err := a.diagSvc.Detail(cmd.Context(), id)
			if err != nil {
				return err
			}
			detail := diagnosis.NewDetail(*d, time.Now())
			return a.print(detail, func() render.Table {
				t := render.Table{Title: d.String(), Headers: []string{"FIELD", "VALUE"}}
				t.AddRow("status", d.Status)
				t.AddRow("severity", render.Dash(d.Severity))
				t.AddRow("icd code", render.Dash(d.ICDCode))
				t.AddRow("onset", render.Dash(d.OnsetDate))
				t.AddRow("resolved", render.Dash(d.ResolutionDate))
				if detail.DurationDays != nil {
					t.AddRow("duration", fmt.Sprintf("%d days", *detail.DurationDays))
				}
				for _, tr := range d.Treatments {
					t.AddRow("treatment", tr.Title)
				}
				for _, at := range d.Attachments {
					t.AddRow("attachment", at.Title)
				}
				return t
			})
		},
	}
}

func diagnosisOverviewCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "overview",
		Short: "Counts of diagnoses, treatments and attachments",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			loadErr := a.diagSvc.Overview(cmd.Context())
			dx := a.diagSvc.Diagnoses().Snapshot().Items
			counts := map[string]any{
				"diagnoses":     len(dx),
				"treatments":    len(a.diagSvc.Treatments().Snapshot().Items),
				"attachments":   len(a.diagSvc.Attachments().Snapshot().Items),
				"status_counts": listview.CountBy(dx, func(d diagnosis.Diagnosis) string { return d.Status }),
			}
			err := a.print(counts, nil)
			if err != nil {
				return err
			}
			return loadErr
		},
	}
}

func treatmentCmd(a *app) *cobra.Command {
	var diagnosisID int64
	cmd := newResourceCmd(a, resourceSpec[diagnosis.Treatment]{
		use:     "treatment",
		aliases: []string{"treatments"},
		short:   "Treatments of a diagnosis",
		audit:   "treatments",
		slice:   func() *store.Slice[diagnosis.Treatment] { return a.diagSvc.Treatments() },
		create: func(ctx context.Context, p map[string]any) (*diagnosis.Treatment, error) {
			return a.diagSvc.CreateTreatment(ctx, p)
		},
		view: func(items []diagnosis.Treatment, q listview.Query) []diagnosis.Treatment {
			return diagnosis.TreatmentsView(items, q, diagnosisID)
		},
		listFlags: func(list *cobra.Command) {
			list.Flags().Int64Var(&diagnosisID, "diagnosis", 0, "Only treatments of this diagnosis")
		},
		headers: []string{"ID", "DIAGNOSIS", "TITLE", "DESCRIPTION"},
		row: func(t diagnosis.Treatment) []string {
			return []string{strconv.FormatInt(t.ID, 10), strconv.FormatInt(t.Diagnosis, 10), t.Title, render.Dash(t.Description)}
		},
	})
	return cmd
}

func attachmentCmd(a *app) *cobra.Command {
	var diagnosisID int64
	cmd := newResourceCmd(a, resourceSpec[diagnosis.Attachment]{
		use:     "attachment",
		aliases: []string{"attachments"},
		short:   "Files attached to a diagnosis",
		audit:   "attachments",
		slice:   func() *store.Slice[diagnosis.Attachment] { return a.diagSvc.Attachments() },
		view: func(items []diagnosis.Attachment, q listview.Query) []diagnosis.Attachment {
			return diagnosis.AttachmentsView(items, q, diagnosisID)
		},
		listFlags: func(list *cobra.Command) {
			list.Flags().Int64Var(&diagnosisID, "diagnosis", 0, "Only attachments of this diagnosis")
		},
		headers: []string{"ID", "DIAGNOSIS", "TITLE", "FILE", "UPLOADED"},
		row: func(at diagnosis.Attachment) []string {
			return []string{strconv.FormatInt(at.ID, 10), strconv.FormatInt(at.Diagnosis, 10), at.Title,
				render.Dash(at.File), formatDate(at.UploadedAt)}
		},
	})
	cmd.AddCommand(uploadAttachmentCmd(a))
	return cmd
}

func uploadAttachmentCmd(a *app) *cobra.Command {
	var meta diagnosis.AttachmentUpload
	cmd := &cobra.Command{
		Use:   "upload <file>",
		Short: "Attach a file to a diagnosis",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := os.Open(args[0])
			if err != nil {
				return fmt.Errorf("open attachment: %w", err)
			}
			defer f.Close()

			meta.Filename = filepath.Base(args[0])
			if meta.Title == "" {
				meta.Title = meta.Filename
			}
			at, err := a.diagSvc.UploadAttachment(cmd.Context(), meta, f)
			a.record(cmd.Context(), http.MethodPost, "attachments", meta.Diagnosis, "upload", err)
			if err != nil {
				return err
			}
			return a.print(at, nil)
		},
	}
	cmd.Flags().Int64Var(&meta.Diagnosis, "diagnosis", 0, "Diagnosis id")
	cmd.Flags().StringVar(&meta.Title, "title", "", "Title (defaults to the file name)")
	cmd.Flags().StringVar(&meta.Description, "description", "", "Description")
	return cmd
}
