package router

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path"
	"strings"
	"testing"
	"time"

	"github.com/deppfellow/cluster-reviewer/internal/config"
	"github.com/deppfellow/cluster-reviewer/internal/handler"
	"github.com/deppfellow/cluster-reviewer/internal/lib/events"
	"github.com/deppfellow/cluster-reviewer/internal/repository"
	"github.com/deppfellow/cluster-reviewer/internal/server"
	"github.com/deppfellow/cluster-reviewer/internal/service"
	"github.com/google/go-cmp/cmp"
	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"
	"github.com/spf13/afero"
)

const testSensorCSV = "timestamp,light.lamp\n" +
	"2024-07-03 14:00:00,on\n" +
	"2024-07-03 14:10:00,off\n"

type testApp struct {
	srv  *server.Server
	fs   afero.Fs
	echo *echo.Echo
}

func newTestApp(t *testing.T, mutate func(*config.Config)) *testApp {
	t.Helper()

	cfg := config.Default()
	cfg.Server.LocalOnly = false
	cfg.Review.BaseFolder = "clusters"
	cfg.Review.DataDir = "data"
	cfg.Sensor.CSVFile = "sensors.csv"
	cfg.Sensor.Year = 2024
	cfg.Sensor.Timezone = "UTC"
	cfg.Sensor.LoadOnStart = false
	if mutate != nil {
		mutate(cfg)
	}

	fsys := afero.NewMemMapFs()
	for _, dir := range []string{"/clusters", "/data"} {
		if err := fsys.MkdirAll(dir, 0o755); err != nil {
			t.Fatal(err)
		}
	}

	nop := zerolog.Nop()
	srv, err := server.NewWithFS(cfg, &nop, nil, "/review", fsys)
	if err != nil {
		t.Fatalf("NewWithFS: %v", err)
	}
	t.Cleanup(func() { _ = srv.Shutdown(context.Background()) })

	services, err := service.NewServices(srv, repository.NewRepositories(srv))
	if err != nil {
		t.Fatal(err)
	}
	handlers, err := handler.NewHandlers(srv, services)
	if err != nil {
		t.Fatal(err)
	}

	return &testApp{srv: srv, fs: fsys, echo: NewRouter(srv, handlers)}
}

func (a *testApp) touch(t *testing.T, paths ...string) {
	t.Helper()
	for _, p := range paths {
		if err := afero.WriteFile(a.fs, path.Join("/clusters", p), []byte(p), 0o644); err != nil {
			t.Fatal(err)
		}
	}
}

func (a *testApp) loadSensors(t *testing.T) {
	t.Helper()
	if err := afero.WriteFile(a.fs, "/sensors.csv", []byte(testSensorCSV), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := a.srv.Sensors.Reload(context.Background()); err != nil {
		t.Fatal(err)
	}
}

func (a *testApp) do(method, target, body string, header ...string) *httptest.ResponseRecorder {
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, target, nil)
	} else {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	}
	for i := 0; i+1 < len(header); i += 2 {
		req.Header.Set(header[i], header[i+1])
	}
	rec := httptest.NewRecorder()
	a.echo.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(rec.Body.Bytes(), &v); err != nil {
		t.Fatalf("decode %q: %v", rec.Body.String(), err)
	}
	return v
}

func expectStatus(t *testing.T, rec *httptest.ResponseRecorder, want int) {
	t.Helper()
	if rec.Code != want {
		t.Fatalf("status = %d, want %d; body: %s", rec.Code, want, rec.Body.String())
	}
}

type apiError struct {
	Code   string `json:"code"`
	Status int    `json:"status"`
	Errors []struct {
		Field string `json:"field"`
		Error string `json:"error"`
	} `json:"errors"`
	Action *struct {
		Type  string `json:"type"`
		Value string `json:"value"`
	} `json:"action"`
}

func TestStatus(t *testing.T) {
	app := newTestApp(t, nil)

	rec := app.do(http.MethodGet, "/status", "")
	expectStatus(t, rec, http.StatusOK)

	body := decode[struct {
		Status string                    `json:"status"`
		Checks map[string]map[string]any `json:"checks"`
	}](t, rec)
	if body.Status != "healthy" || body.Checks["base_folder"]["status"] != "healthy" {
		t.Fatalf("unexpected health: %+v", body)
	}
	if body.Checks["sensors"]["status"] != "empty" {
		t.Fatalf("sensors check = %v", body.Checks["sensors"])
	}

	if err := app.fs.RemoveAll("/clusters"); err != nil {
		t.Fatal(err)
	}
	expectStatus(t, app.do(http.MethodGet, "/status", ""), http.StatusServiceUnavailable)
}

func TestPages(t *testing.T) {
	app := newTestApp(t, nil)
	app.touch(t, "cluster_1/03-07_14-04-00.jpg", "cluster_2/03-07_14-09-00.jpg")
	app.loadSensors(t)

	tests := []struct {
		target string
		want   string
	}{
		{"/", `href="/cluster/cluster_1"`},
		{"/cluster/cluster_1", `data-cluster="cluster_1"`},
		{"/review", "Save and next"},
		{"/merge", "cluster_2"},
		{"/settings", "clusters"},
		{"/annotations", "Annotations"},
		{"/restart", `content="3;url=/"`},
	}

	for _, tt := range tests {
		t.Run(tt.target, func(t *testing.T) {
			rec := app.do(http.MethodGet, tt.target, "", echo.HeaderAccept, "text/html")
			expectStatus(t, rec, http.StatusOK)
			if ct := rec.Header().Get(echo.HeaderContentType); !strings.HasPrefix(ct, "text/html") {
				t.Fatalf("content type = %q", ct)
			}
			if !strings.Contains(rec.Body.String(), tt.want) {
				t.Fatalf("page does not contain %q", tt.want)
			}
		})
	}
}

func TestClusterPageSensorRows(t *testing.T) {
	app := newTestApp(t, nil)
	app.touch(t, "cluster_1/03-07_14-04-00.jpg", "cluster_1/03-07_18-00-00.jpg")
	app.loadSensors(t)

	rec := app.do(http.MethodGet, "/cluster/cluster_1", "", echo.HeaderAccept, "text/html")
	expectStatus(t, rec, http.StatusOK)

	body := rec.Body.String()
	if !strings.Contains(body, "sensor row 2024-07-03 14:00:00") {
		t.Fatal("matched image shows no sensor row")
	}
	if !strings.Contains(body, `src="/clusters/cluster_1/03-07_14-04-00.jpg"`) {
		t.Fatal("image url missing")
	}
}

func TestNotFound(t *testing.T) {
	app := newTestApp(t, nil)

	rec := app.do(http.MethodGet, "/cluster/cluster_99", "", echo.HeaderAccept, "text/html")
	expectStatus(t, rec, http.StatusNotFound)
	if !strings.Contains(rec.Body.String(), "Page not found") {
		t.Fatalf("browser did not get the not found page: %s", rec.Body.String())
	}

	rec = app.do(http.MethodGet, "/api/cluster-info/cluster_99", "")
	expectStatus(t, rec, http.StatusNotFound)
	if got := decode[apiError](t, rec); got.Status != http.StatusNotFound {
		t.Fatalf("json error = %+v", got)
	}
}

func TestReviewFlow(t *testing.T) {
	app := newTestApp(t, nil)
	app.touch(t, "cluster_1/a.jpg", "cluster_2/b.jpg")

	type state struct {
		Cluster *struct {
			Name string `json:"name"`
		} `json:"cluster"`
		Total           int      `json:"total"`
		Done            int      `json:"done"`
		TopDescriptions []string `json:"top_descriptions"`
	}

	got := decode[state](t, app.do(http.MethodGet, "/api/review", ""))
	if got.Cluster == nil || got.Cluster.Name != "cluster_1" || got.Total != 2 || got.Done != 0 {
		t.Fatalf("initial state = %+v", got)
	}

	expectStatus(t, app.do(http.MethodPost, "/describe", `{"folder":"cluster_1","description":" lamp on "}`), http.StatusOK)

	got = decode[state](t, app.do(http.MethodGet, "/api/review", ""))
	if got.Cluster == nil || got.Cluster.Name != "cluster_2" || got.Done != 1 {
		t.Fatalf("after describe = %+v", got)
	}
	if diff := cmp.Diff([]string{"lamp on"}, got.TopDescriptions); diff != "" {
		t.Fatalf("top descriptions (-want +got):\n%s", diff)
	}

	expectStatus(t, app.do(http.MethodPost, "/skip-cluster", `{"folder":"cluster_2"}`), http.StatusOK)

	rec := app.do(http.MethodGet, "/review", "", echo.HeaderAccept, "text/html")
	expectStatus(t, rec, http.StatusOK)
	if !strings.Contains(rec.Body.String(), "All clusters reviewed") {
		t.Fatal("done page not shown")
	}

	expectStatus(t, app.do(http.MethodPost, "/unskip-cluster", `{"folder":"cluster_2"}`), http.StatusOK)
	got = decode[state](t, app.do(http.MethodGet, "/api/review", ""))
	if got.Cluster == nil || got.Cluster.Name != "cluster_2" {
		t.Fatalf("after unskip = %+v", got)
	}

	expectStatus(t, app.do(http.MethodPost, "/describe", `{"folder":"cluster_2","description":"   "}`), http.StatusBadRequest)
}

func TestCreateAndMove(t *testing.T) {
	app := newTestApp(t, nil)
	app.touch(t, "cluster_1/a.jpg", "cluster_1/b.jpg")

	rec := app.do(http.MethodPost, "/create-empty-cluster", `{"clusterName":"kitchen lights"}`)
	expectStatus(t, rec, http.StatusCreated)
	created := decode[struct {
		Success     bool   `json:"success"`
		ClusterName string `json:"clusterName"`
	}](t, rec)
	if !created.Success || created.ClusterName != "cluster_kitchen_lights" {
		t.Fatalf("create = %+v", created)
	}
	expectStatus(t, app.do(http.MethodPost, "/create-empty-cluster", `{"clusterName":"kitchen lights"}`), http.StatusConflict)

	rec = app.do(http.MethodPost, "/move-to-cluster",
		`{"sourceFolder":"cluster_1","targetFolder":"cluster_kitchen_lights","items":["a.jpg"]}`)
	expectStatus(t, rec, http.StatusOK)
	moved := decode[struct {
		Success       bool   `json:"success"`
		Moved         int    `json:"moved"`
		TargetCluster string `json:"target_cluster"`
	}](t, rec)
	if !moved.Success || moved.Moved != 1 || moved.TargetCluster != "cluster_kitchen_lights" {
		t.Fatalf("move = %+v", moved)
	}
	if ok, _ := afero.Exists(app.fs, "/clusters/cluster_kitchen_lights/a.jpg"); !ok {
		t.Fatal("image not moved")
	}

	expectStatus(t, app.do(http.MethodPost, "/move-to-undefined", `{"folder":"cluster_1","item":"b.jpg"}`), http.StatusOK)
	if ok, _ := afero.Exists(app.fs, "/clusters/undefined/b.jpg"); !ok {
		t.Fatal("image not moved to undefined")
	}
}

func TestMoveValidation(t *testing.T) {
	app := newTestApp(t, nil)

	tests := []struct {
		name  string
		body  string
		field string
	}{
		{"no items", `{"sourceFolder":"cluster_1","targetFolder":"cluster_2","items":[]}`, "items"},
		{"escaping folder", `{"sourceFolder":"..","targetFolder":"cluster_2","items":["a.jpg"]}`, "source_folder"},
		{"missing target", `{"sourceFolder":"cluster_1","items":["a.jpg"]}`, "target_folder"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := app.do(http.MethodPost, "/move-to-cluster", tt.body)
			expectStatus(t, rec, http.StatusBadRequest)

			got := decode[apiError](t, rec)
			if len(got.Errors) == 0 || got.Errors[0].Field != tt.field {
				t.Fatalf("errors = %+v, want field %q", got.Errors, tt.field)
			}
		})
	}

	expectStatus(t, app.do(http.MethodPost, "/move-to-cluster", `{not json`), http.StatusBadRequest)
}

func TestMergeMany(t *testing.T) {
	app := newTestApp(t, nil)
	app.touch(t, "cluster_1/a.jpg", "cluster_2/b.jpg", "cluster_3/c.jpg")

	rec := app.do(http.MethodPost, "/merge-multiple-clusters", `{"clusterNames":["cluster_2","cluster_3"]}`)
	expectStatus(t, rec, http.StatusOK)
	got := decode[struct {
		TargetCluster  string   `json:"target_cluster"`
		MergedClusters []string `json:"merged_clusters"`
	}](t, rec)
	if got.TargetCluster != "cluster_2" || len(got.MergedClusters) != 1 || got.MergedClusters[0] != "cluster_3" {
		t.Fatalf("merge = %+v", got)
	}
	if ok, _ := afero.Exists(app.fs, "/clusters/cluster_2/c.jpg"); !ok {
		t.Fatal("image not merged")
	}

	expectStatus(t, app.do(http.MethodPost, "/merge-multiple-clusters", `{"clusterNames":["cluster_1"]}`), http.StatusBadRequest)
	expectStatus(t, app.do(http.MethodPost, "/merge-clusters", `{"sourceCluster":"cluster_1","targetCluster":"cluster_1"}`), http.StatusBadRequest)
}

func TestSensorMatch(t *testing.T) {
	app := newTestApp(t, nil)
	app.loadSensors(t)

	rec := app.do(http.MethodGet, "/api/sensors/match?filename=03-07_14-04-00.jpg&filename=03-07_16-00-00.jpg", "")
	expectStatus(t, rec, http.StatusOK)

	got := decode[handler.SensorMatchResponse](t, rec)
	if len(got.Results) != 2 {
		t.Fatalf("results = %+v", got.Results)
	}
	if !got.Results[0].Matched || got.Results[0].Match.RecordTimestamp != "2024-07-03 14:00:00" {
		t.Fatalf("first = %+v", got.Results[0])
	}
	if got.Results[0].Match.Fields["light.lamp"] != "on" {
		t.Fatalf("fields = %v", got.Results[0].Match.Fields)
	}
	if got.Results[1].Matched || got.Results[1].Timestamp != "2024-07-03 16:00:00.000000" {
		t.Fatalf("second = %+v", got.Results[1])
	}

	rec = app.do(http.MethodPost, "/api/sensors/match", `{"filenames":["IMG_0001.jpg"]}`)
	expectStatus(t, rec, http.StatusBadRequest)
	if code := decode[apiError](t, rec).Code; code != "MALFORMED_FILENAME" {
		t.Fatalf("code = %q", code)
	}

	expectStatus(t, app.do(http.MethodGet, "/api/sensors/match", ""), http.StatusBadRequest)
}

func TestSensorReload(t *testing.T) {
	app := newTestApp(t, nil)
	if err := afero.WriteFile(app.fs, "/sensors.csv", []byte(testSensorCSV), 0o644); err != nil {
		t.Fatal(err)
	}

	expectStatus(t, app.do(http.MethodPost, "/api/sensors/reload", `{"reason":"test"}`), http.StatusAccepted)

	deadline := time.Now().Add(5 * time.Second)
	for app.srv.Sensors.Status().Records != 2 {
		if time.Now().After(deadline) {
			t.Fatalf("reload did not finish: %+v", app.srv.Sensors.Status())
		}
		time.Sleep(10 * time.Millisecond)
	}

	rec := app.do(http.MethodGet, "/api/sensors/status", "")
	expectStatus(t, rec, http.StatusOK)
	if got := decode[struct {
		Records int `json:"records"`
	}](t, rec); got.Records != 2 {
		t.Fatalf("status records = %d", got.Records)
	}
}

func TestSensorReloadRateLimit(t *testing.T) {
	app := newTestApp(t, func(c *config.Config) {
		c.Server.ReloadRate = 0.001
		c.Server.ReloadBurst = 1
	})

	expectStatus(t, app.do(http.MethodPost, "/api/sensors/reload", ""), http.StatusAccepted)
	expectStatus(t, app.do(http.MethodPost, "/api/sensors/reload", ""), http.StatusTooManyRequests)
}

func TestAnnotations(t *testing.T) {
	app := newTestApp(t, nil)
	app.touch(t, "cluster_1/03-07_14-04-00.jpg")
	app.loadSensors(t)

	rec := app.do(http.MethodPost, "/annotate",
		`{"folder":"cluster_1","actions":[{"action_name":"turn_on","params":["camera","lamp"]}],"simple_description":"lamp on"}`)
	expectStatus(t, rec, http.StatusOK)
	if got := decode[struct {
		Success          bool `json:"success"`
		TotalAnnotations int  `json:"total_annotations"`
	}](t, rec); !got.Success || got.TotalAnnotations != 1 {
		t.Fatalf("annotate = %+v", got)
	}

	rec = app.do(http.MethodPost, "/annotate", `{"folder":"cluster_1","actions":[{"action_name":"explode"}]}`)
	expectStatus(t, rec, http.StatusBadRequest)

	rec = app.do(http.MethodGet, "/annotations/download", "")
	expectStatus(t, rec, http.StatusOK)
	if cd := rec.Header().Get(echo.HeaderContentDisposition); cd != "attachment; filename=annotations.json" {
		t.Fatalf("content disposition = %q", cd)
	}
	anns := decode[[]repository.Annotation](t, rec)
	if len(anns) != 1 || anns[0].Inputs[0].Sensors["light.lamp"] != "on" {
		t.Fatalf("download = %+v", anns)
	}

	expectStatus(t, app.do(http.MethodPost, "/delete-annotation", `{"index":5}`), http.StatusBadRequest)
	expectStatus(t, app.do(http.MethodPost, "/delete-annotation", `{}`), http.StatusBadRequest)
	expectStatus(t, app.do(http.MethodPost, "/delete-annotation", `{"index":0}`), http.StatusOK)
	expectStatus(t, app.do(http.MethodPost, "/clear-annotations", ""), http.StatusOK)
}

func TestAnnotationsDisabled(t *testing.T) {
	app := newTestApp(t, func(c *config.Config) { c.Review.AnnotationsEnabled = false })
	app.touch(t, "cluster_1/a.jpg")

	rec := app.do(http.MethodGet, "/annotations", "", echo.HeaderAccept, "text/html")
	expectStatus(t, rec, http.StatusSeeOther)
	if loc := rec.Header().Get(echo.HeaderLocation); loc != "/settings" {
		t.Fatalf("location = %q", loc)
	}

	rec = app.do(http.MethodPost, "/annotate", `{"folder":"cluster_1","actions":[]}`)
	expectStatus(t, rec, http.StatusBadRequest)
	got := decode[apiError](t, rec)
	if got.Action == nil || got.Action.Value != "/settings" {
		t.Fatalf("error = %+v", got)
	}

	page := app.do(http.MethodGet, "/cluster/cluster_1", "", echo.HeaderAccept, "text/html")
	expectStatus(t, page, http.StatusOK)
	if strings.Contains(page.Body.String(), `href="/annotations"`) {
		t.Fatal("annotations menu shown while disabled")
	}
}

func TestSettings(t *testing.T) {
	app := newTestApp(t, nil)

	rec := app.do(http.MethodGet, "/api/settings", "")
	expectStatus(t, rec, http.StatusOK)
	view := decode[service.SettingsView](t, rec)
	if view.Settings.BaseFolder != "clusters" || view.Settings.Year != 2024 {
		t.Fatalf("settings = %+v", view.Settings)
	}

	next := view.Settings
	next.Year = 2023
	body, err := json.Marshal(next)
	if err != nil {
		t.Fatal(err)
	}
	expectStatus(t, app.do(http.MethodPost, "/save-settings", string(body)), http.StatusOK)
	if y := app.srv.Sensors.Normalizer().Year; y != 2023 {
		t.Fatalf("normalizer year = %d", y)
	}
	if ok, _ := afero.Exists(app.fs, "/data/reviewer_settings.yaml"); !ok {
		t.Fatal("settings not written")
	}

	expectStatus(t, app.do(http.MethodPost, "/save-settings", `{"base_folder":""}`), http.StatusBadRequest)

	rec = app.do(http.MethodPost, "/reset-settings", "")
	expectStatus(t, rec, http.StatusOK)
	if y := app.srv.Sensors.Normalizer().Year; y != 2024 {
		t.Fatalf("year after reset = %d", y)
	}

	expectStatus(t, app.do(http.MethodPost, "/restart", ""), http.StatusOK)
}

func TestImages(t *testing.T) {
	app := newTestApp(t, nil)
	app.touch(t, "cluster_1/a.jpg", "cluster_1/notes.txt")
	if err := afero.WriteFile(app.fs, "/data/secret.jpg", []byte("secret"), 0o644); err != nil {
		t.Fatal(err)
	}

	rec := app.do(http.MethodGet, "/clusters/cluster_1/a.jpg", "")
	expectStatus(t, rec, http.StatusOK)
	if rec.Body.String() != "cluster_1/a.jpg" {
		t.Fatalf("body = %q", rec.Body.String())
	}

	for _, target := range []string{
		"/clusters/cluster_1",
		"/clusters/cluster_1/notes.txt",
		"/clusters/cluster_1/missing.jpg",
		"/clusters/../data/secret.jpg",
	} {
		if rec := app.do(http.MethodGet, target, ""); rec.Code != http.StatusNotFound {
			t.Errorf("GET %s = %d, want 404", target, rec.Code)
		}
	}
}

func TestAssets(t *testing.T) {
	app := newTestApp(t, nil)

	rec := app.do(http.MethodGet, "/assets/app.css", "")
	expectStatus(t, rec, http.StatusOK)
	if ct := rec.Header().Get(echo.HeaderContentType); !strings.HasPrefix(ct, "text/css") {
		t.Fatalf("content type = %q", ct)
	}
}

func TestClusterAPI(t *testing.T) {
	app := newTestApp(t, nil)
	app.touch(t, "cluster_1/a.jpg", "cluster_4/b.jpg", "cluster_4/c.jpg")

	rec := app.do(http.MethodGet, "/api/cluster-info/cluster_4", "")
	expectStatus(t, rec, http.StatusOK)
	if got := decode[repository.ClusterStats](t, rec); got.ItemCount != 2 {
		t.Fatalf("info = %+v", got)
	}

	rec = app.do(http.MethodGet, "/api/next-cluster-number", "")
	expectStatus(t, rec, http.StatusOK)
	if got := decode[service.NextClusterNumber](t, rec); got.NextNumber != 5 || got.SuggestedName != "cluster_5" {
		t.Fatalf("next = %+v", got)
	}

	rec = app.do(http.MethodGet, "/api/cluster-previews", "")
	expectStatus(t, rec, http.StatusOK)
	if got := decode[[]repository.Preview](t, rec); len(got) != 2 || got[0].Name != "cluster_1" {
		t.Fatalf("previews = %+v", got)
	}
}

func TestEventsWebsocket(t *testing.T) {
	app := newTestApp(t, nil)
	ts := httptest.NewServer(app.echo)
	t.Cleanup(ts.Close)

	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(ts.URL, "http")+"/ws/events", nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	deadline := time.Now().Add(2 * time.Second)
	for app.srv.Events.ClientCount() != 1 {
		if time.Now().After(deadline) {
			t.Fatal("client never registered")
		}
		time.Sleep(5 * time.Millisecond)
	}

	res, err := http.Post(ts.URL+"/create-empty-cluster", echo.MIMEApplicationJSON, strings.NewReader(`{"clusterName":"cluster_7"}`))
	if err != nil {
		t.Fatal(err)
	}
	res.Body.Close()
	if res.StatusCode != http.StatusCreated {
		t.Fatalf("create status = %d", res.StatusCode)
	}

	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var ev events.Event
	if err := conn.ReadJSON(&ev); err != nil {
		t.Fatalf("read event: %v", err)
	}
	if ev.Type != events.ClustersChanged {
		t.Fatalf("event type = %q", ev.Type)
	}
}
