package main

import (
	"context"
	"fmt"
	"maps"
	"net/http"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/pedsclinic/clinicadmin/internal/domain/lab"
	"github.com/pedsclinic/clinicadmin/internal/platform/listview"
	"github.com/pedsclinic/clinicadmin/internal/platform/render"
	"github.com/pedsclinic/clinicadmin/internal/platform/store"
)

func formatDate(t *time.Time) string {
	if t == nil {
		return "-"
	}
	return t.Format("2006-01-02")
}

func formatID(id *int64) string {
	if id == nil {
		return "-"
	}
	return strconv.FormatInt(*id, 10)
}

func labCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "lab",
		Short: "Lab tests, reference ranges, requests and results",
	}

	tests := newResourceCmd(a, resourceSpec[lab.LabTest]{
		use:     "tests",
		aliases: []string{"test"},
		short:   "Lab test catalogue",
		audit:   "lab/tests",
		slice:   func() *store.Slice[lab.LabTest] { return a.labSvc.Tests() },
		create:  func(ctx context.Context, p map[string]any) (*lab.LabTest, error) { return a.labSvc.CreateLabTest(ctx, p) },
		view: func(items []lab.LabTest, q listview.Query) []lab.LabTest {
			return lab.LabTestsView(items, q).Items
		},
		headers: []string{"ID", "CODE", "NAME", "CATEGORY", "SAMPLE", "PRICE", "FASTING", "ACTIVE"},
		row: func(t lab.LabTest) []string {
			return []string{strconv.FormatInt(t.ID, 10), t.Code, t.Name, render.Dash(t.Category), render.Dash(t.SampleType),
				render.Dash(t.Price.String()), render.Bool(t.RequiresFasting), render.Bool(t.IsActive)}
		},
	})
	tests.AddCommand(bulkUploadCmd(a, "lab/tests", a.labSvcBulkTests))

	ranges := newResourceCmd(a, resourceSpec[lab.ReferenceRange]{
		use:     "ranges",
		aliases: []string{"range", "reference-ranges"},
		short:   "Reference ranges per test parameter",
		audit:   "lab/ranges",
		slice:   func() *store.Slice[lab.ReferenceRange] { return a.labSvc.Ranges() },
		create: func(ctx context.Context, p map[string]any) (*lab.ReferenceRange, error) {
			return a.labSvc.CreateReferenceRange(ctx, p)
		},
		view: func(items []lab.ReferenceRange, q listview.Query) []lab.ReferenceRange {
			return listview.Filter(items, q.Search,
				func(r lab.ReferenceRange) string { return r.TestLabel() },
				func(r lab.ReferenceRange) string { return r.ParameterName },
			)
		},
		headers: []string{"ID", "TEST", "PARAMETER", "AGE (MONTHS)", "GENDER", "RANGE"},
		row: func(r lab.ReferenceRange) []string {
			return []string{strconv.FormatInt(r.ID, 10), r.TestLabel(), r.ParameterName,
				fmt.Sprintf("%d-%d", r.MinAgeMonths, r.MaxAgeMonths), r.Gender, r.Display()}
		},
	})
	ranges.AddCommand(bulkUploadCmd(a, "lab/ranges", a.labSvcBulkRanges))
	ranges.AddCommand(applicableRangesCmd(a))

	requests := newResourceCmd(a, resourceSpec[lab.LabRequest]{
		use:     "requests",
		aliases: []string{"request"},
		short:   "Lab requests",
		audit:   "lab/requests",
		slice:   func() *store.Slice[lab.LabRequest] { return a.labSvc.Requests() },
		create: func(ctx context.Context, p map[string]any) (*lab.LabRequest, error) {
			return a.labSvc.CreateLabRequest(ctx, p)
		},
		view: func(items []lab.LabRequest, q listview.Query) []lab.LabRequest {
			return lab.LabRequestsView(items, q).Items
		},
		defaultSort: lab.DefaultRequestSort,
		headers:     []string{"ID", "REQUEST", "CHILD", "DOCTOR", "STATUS", "PRIORITY", "REQUESTED"},
		row: func(r lab.LabRequest) []string {
			return []string{strconv.FormatInt(r.ID, 10), render.Dash(r.RequestID), render.Dash(r.ChildDetails.FullName()),
				render.Dash(r.RequestedByDetails.FullName()), r.Status, r.Priority, formatDate(r.DateRequested)}
		},
	})

	items := newResourceCmd(a, resourceSpec[lab.LabRequestItem]{
		use:     "items",
		aliases: []string{"item", "request-items"},
		short:   "Tests ordered within a lab request",
		audit:   "lab/items",
		slice:   func() *store.Slice[lab.LabRequestItem] { return a.labSvc.Items() },
		create: func(ctx context.Context, p map[string]any) (*lab.LabRequestItem, error) {
			return a.labSvc.CreateLabRequestItem(ctx, p)
		},
		view: func(items []lab.LabRequestItem, q listview.Query) []lab.LabRequestItem {
			return lab.LabRequestItemsView(items, q).Items
		},
		headers: []string{"ID", "REQUEST", "TEST", "COMPLETED"},
		row: func(i lab.LabRequestItem) []string {
			test := strconv.FormatInt(i.LabTest, 10)
			if i.LabTestDetails != nil {
				test = i.LabTestDetails.Name
			}
			return []string{strconv.FormatInt(i.ID, 10), strconv.FormatInt(i.LabRequest, 10), test, render.Bool(i.IsCompleted)}
		},
	})

	results := newResourceCmd(a, resourceSpec[lab.LabResult]{
		use:     "results",
		aliases: []string{"result"},
		short:   "Lab results",
		audit:   "lab/results",
		slice:   func() *store.Slice[lab.LabResult] { return a.labSvc.Results() },
		create: func(ctx context.Context, p map[string]any) (*lab.LabResult, error) {
			return a.labSvc.CreateLabResult(ctx, p)
		},
		view:    lab.LabResultsView,
		headers: []string{"ID", "ITEM", "TEST", "CHILD", "PERFORMED", "PERFORMED BY"},
		row: func(r lab.LabResult) []string {
			test, child := "-", "-"
			if d := r.LabRequestItemDetails; d != nil {
				test, child = render.Dash(d.LabTest), render.Dash(d.Child)
			}
			return []string{strconv.FormatInt(r.ID, 10), strconv.FormatInt(r.LabRequestItem, 10), test, child,
				formatDate(r.DatePerformed), render.Dash(r.PerformedByDetails.String())}
		},
	})
	results.AddCommand(addParametersCmd(a))

	params := newResourceCmd(a, resourceSpec[lab.LabResultParameter]{
		use:     "parameters",
		aliases: []string{"parameter", "params"},
		short:   "Measured values of lab results",
		audit:   "lab/parameters",
		slice:   func() *store.Slice[lab.LabResultParameter] { return a.labSvc.Parameters() },
		create: func(ctx context.Context, p map[string]any) (*lab.LabResultParameter, error) {
			if err := a.ensureRanges(ctx, p); err != nil {
				return nil, err
			}
			return a.labSvc.CreateLabResultParameter(ctx, p)
		},
		view: func(items []lab.LabResultParameter, q listview.Query) []lab.LabResultParameter {
			q.Group = lab.GroupNone
			return lab.ParametersView(items, q).Groups[0].Items
		},
		headers: []string{"ID", "RESULT", "PARAMETER", "VALUE", "UNIT", "RANGE", "STATUS", "CHILD"},
		row: func(p lab.LabResultParameter) []string {
			return []string{strconv.FormatInt(p.ID, 10), strconv.FormatInt(p.LabResult, 10), p.ParameterName,
				render.Dash(p.Value.String()), render.Dash(p.Unit), formatID(p.ReferenceRange), render.Dash(p.Status), render.Dash(p.ChildDetails.String())}
		},
	})
	params.AddCommand(chartCmd(a))

	cmd.AddCommand(tests, ranges, requests, items, results, params, labDashboardCmd(a))
	return cmd
}

func (a *app) labSvcBulkTests(ctx context.Context, filename string, f *os.File) (*lab.BulkUploadResult, error) {
	return a.labSvc.BulkUploadLabTests(ctx, filename, f)
}

func (a *app) labSvcBulkRanges(ctx context.Context, filename string, f *os.File) (*lab.BulkUploadResult, error) {
	return a.labSvc.BulkUploadReferenceRanges(ctx, filename, f)
}

// ensureRanges loads the reference ranges when a payload links a range but
// carries no unit, so the range's unit can be copied over.
func (a *app) ensureRanges(ctx context.Context, payloads ...map[string]any) error {
	for _, p := range payloads {
		unit, _ := p["unit"].(string)
		if p["reference_range"] != nil && unit == "" {
			_, err := a.labSvc.Ranges().FetchAll(ctx)
			return err
		}
	}
	return nil
}

func bulkUploadCmd(a *app, resource string, upload func(context.Context, string, *os.File) (*lab.BulkUploadResult, error)) *cobra.Command {
	return &cobra.Command{
		Use:   "bulk-upload <spreadsheet>",
		Short: "Import rows from an Excel or CSV file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := os.Open(args[0])
			if err != nil {
				return fmt.Errorf("open spreadsheet: %w", err)
			}
			defer f.Close()

			res, err := upload(cmd.Context(), filepath.Base(args[0]), f)
			a.record(cmd.Context(), http.MethodPost, resource, 0, "bulk-upload", err)
			if err != nil {
				return err
			}
			return a.print(res, func() render.Table {
				t := render.Table{Title: render.Dash(res.Message), Headers: []string{"ROW", "ERROR"}}
				for _, e := range res.Errors {
					t.AddRow(strconv.Itoa(e.Row), rowErrors(e.Errors))
				}
				if len(res.Errors) == 0 {
					t.Title = fmt.Sprintf("%d row(s) created", res.Created)
				}
				return t
			})
		},
	}
}

// rowErrors flattens a spreadsheet row's field errors into "field: message"
// pairs in field order.
func rowErrors(errs map[string]any) string {
	parts := make([]string, 0, len(errs))
	for _, field := range slices.Sorted(maps.Keys(errs)) {
		msg := errs[field]
		if list, ok := msg.([]any); ok && len(list) > 0 {
			msg = list[0]
		}
		parts = append(parts, fmt.Sprintf("%s: %v", field, msg))
	}
	return strings.Join(parts, "; ")
}

func applicableRangesCmd(a *app) *cobra.Command {
	var labTest int64
	var parameter, gender string
	var ageMonths int
	cmd := &cobra.Command{
		Use:   "applicable",
		Short: "Reference ranges that apply to a child",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if labTest <= 0 {
				return fmt.Errorf("--lab-test is required")
			}
			if _, err := a.labSvc.Ranges().FetchAll(cmd.Context()); err != nil {
				return err
			}
			ranges := a.labSvc.ApplicableRanges(labTest, parameter, ageMonths, gender)
			return a.print(ranges, func() render.Table {
				t := render.Table{Headers: []string{"ID", "PARAMETER", "GENDER", "RANGE"}}
				for _, r := range ranges {
					t.AddRow(strconv.FormatInt(r.ID, 10), r.ParameterName, r.Gender, r.Display())
				}
				return t
			})
		},
	}
	cmd.Flags().Int64Var(&labTest, "lab-test", 0, "Lab test id")
	cmd.Flags().StringVar(&parameter, "parameter", "", "Parameter name")
	cmd.Flags().IntVar(&ageMonths, "age-months", 0, "Child age in months")
	cmd.Flags().StringVar(&gender, "gender", "", "M or F")
	return cmd
}

func addParametersCmd(a *app) *cobra.Command {
	var body payloadFlags
	cmd := &cobra.Command{
		Use:   "add-parameters <result-id>",
		Short: "Record parameter values for a result, one call per parameter",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			payloads, err := body.loadList()
			if err != nil {
				return err
			}
			if err := a.ensureRanges(cmd.Context(), payloads...); err != nil {
				return err
			}
			created, err := a.labSvc.AddParameters(cmd.Context(), id, payloads)
			a.record(cmd.Context(), http.MethodPost, "lab/results", id, "parameters", err)
			if len(created) > 0 {
				if perr := a.print(created, nil); perr != nil {
					return perr
				}
			}
			return err
		},
	}
	cmd.Flags().StringVarP(&body.data, "data", "d", "", "JSON or YAML list of parameters")
	cmd.Flags().StringVarP(&body.file, "file", "f", "", "Read the list from a file")
	return cmd
}

func chartCmd(a *app) *cobra.Command {
	var child int64
	var parameter, out string
	cmd := &cobra.Command{
		Use:   "chart",
		Short: "Write a parameter's trend chart as HTML",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := a.labSvc.LoadTrendData(cmd.Context()); err != nil {
				return err
			}
			html, err := a.labSvc.ParameterTrendHTML(child, parameter)
			if err != nil {
				return err
			}
			if out == "" || out == "-" {
				_, err := fmt.Fprint(a.out, html)
				return err
			}
			if err := os.WriteFile(out, []byte(html), 0o644); err != nil {
				return fmt.Errorf("write chart: %w", err)
			}
			fmt.Fprintf(a.out, "Chart written to %s.\n", out)
			return nil
		},
	}
	cmd.Flags().StringVar(&parameter, "parameter", "", "Parameter name, e.g. Hemoglobin")
	cmd.Flags().Int64Var(&child, "child", 0, "Only values of this child")
	cmd.Flags().StringVar(&out, "out", "", "Output file (stdout when empty)")
	return cmd
}

func labDashboardCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "dashboard",
		Short: "Counts across every lab collection",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			loadErr := a.labSvc.LoadDashboard(cmd.Context())
			d := a.labSvc.Dashboard()
			err := a.print(d, func() render.Table {
				t := render.Table{Title: "Lab dashboard", Headers: []string{"METRIC", "VALUE"}}
				t.AddRow("tests", strconv.Itoa(d.Tests.Total))
				t.AddRow("active tests", strconv.Itoa(d.Tests.Active))
				t.AddRow("fasting tests", strconv.Itoa(d.Tests.Fasting))
				t.AddRow("reference ranges", strconv.Itoa(d.Ranges))
				t.AddRow("request items pending", strconv.Itoa(d.Items.Pending))
				t.AddRow("request items completed", strconv.Itoa(d.Items.Completed))
				t.AddRow("results", strconv.Itoa(d.Results))
				for _, status := range slices.Sorted(maps.Keys(d.RequestStatusCounts)) {
					t.AddRow("requests "+status, strconv.Itoa(d.RequestStatusCounts[status]))
				}
				return t
			})
			if err != nil {
				return err
			}
			return loadErr
		},
	}
}
