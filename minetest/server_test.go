package minetest_test

import (
	"context"
	"io"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/persistorai/mining/client"
	"github.com/persistorai/mining/graph"
	"github.com/persistorai/mining/minetest"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func quietLogger() *logrus.Logger {
	log := logrus.New()
	log.SetOutput(io.Discard)
	return log
}

func setup(t *testing.T, projects ...*minetest.Project) (*minetest.Server, *client.Client) {
	t.Helper()
	srv := minetest.New(minetest.WithLogger(quietLogger()))
	for _, p := range projects {
		srv.AddProject(p)
	}
	srv.Start()
	t.Cleanup(srv.Close)

	c := client.New(srv.URL(), srv.AuthURL(), srv.WorkgroupID(), srv.WorkgroupKey(),
		client.WithLogger(quietLogger()),
		client.WithTimeout(5*time.Second),
	)
	return srv, c
}

func TestGraphsAndInstances(t *testing.T) {
	id := uuid.NewString()
	_, c := setup(t, minetest.NewSampleProject(id))
	ctx := context.Background()

	projects, err := c.Projects(ctx)
	require.NoError(t, err)
	require.Len(t, projects, 1)
	p := projects[0]
	assert.Equal(t, id, p.ID)

	name, err := p.Name(ctx)
	require.NoError(t, err)
	assert.Equal(t, "Purchasing", name)

	simplified, err := p.Graph(ctx, false)
	require.NoError(t, err)
	assert.Len(t, simplified.Vertices, 4)
	assert.Len(t, simplified.Edges, 4)

	gateways, err := p.Graph(ctx, true)
	require.NoError(t, err)
	var splits int
	for _, v := range gateways.Vertices {
		if v.Category == graph.CategoryAndSplit {
			splits++
		}
	}
	assert.Equal(t, 1, splits)

	instances, err := p.GraphInstances(ctx, 0, false)
	require.NoError(t, err)
	require.Len(t, instances, 2)
	assert.InDelta(t, 0.5, instances[0].ConcurrencyRate, 1e-9)
	assert.Equal(t, 1, instances[1].ReworkTotal)
}

func TestDatasourcesOverSQL(t *testing.T) {
	id := uuid.NewString()
	_, c := setup(t, minetest.NewSampleProject(id))
	ctx := context.Background()
	p := c.Project(id)

	keys, err := p.ProcessKeys(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"case-1", "case-2"}, keys)

	cases, err := p.CasesDatasource(ctx)
	require.NoError(t, err)
	table, err := cases.Load(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, []string{"processkey", "duration", "country"}, table.Columns)
	assert.Len(t, table.Rows, 1)

	nodes, err := p.NodesDatasource(ctx)
	require.NoError(t, err)
	cols, err := nodes.Columns(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"id", "name"}, cols)

	all, err := c.Datasources(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 3)

	_, err = cases.Query(ctx, "DELETE FROM cases")
	assert.ErrorIs(t, err, client.ErrReadOnlyQuery)
}

func TestTokenReissuedAfterRevocation(t *testing.T) {
	id := uuid.NewString()
	srv, c := setup(t, minetest.NewSampleProject(id))
	ctx := context.Background()

	require.NoError(t, c.Login(ctx))
	ok, err := c.Project(id).Exists(ctx)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, 1, srv.TokensIssued())

	srv.RevokeTokens()
	_, err = c.Project(id).Name(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, srv.TokensIssued())
}

func TestInvalidCredentials(t *testing.T) {
	srv, _ := setup(t)
	c := client.New(srv.URL(), srv.AuthURL(), srv.WorkgroupID(), "wrong", client.WithLogger(quietLogger()))

	err := c.Login(context.Background())
	assert.ErrorIs(t, err, client.ErrInvalidCredentials)
}

func TestUnknownProject(t *testing.T) {
	_, c := setup(t)
	ctx := context.Background()

	p, err := c.ProjectFromID(ctx, "missing")
	require.NoError(t, err)
	assert.Nil(t, p)

	_, err = c.Project("missing").Name(ctx)
	assert.True(t, client.IsNotFound(err), "expected not found, got %v", err)
}

func TestProjectLifecycle(t *testing.T) {
	srv, c := setup(t)
	ctx := context.Background()

	p, err := c.CreateProject(ctx, "Invoices", "accounts payable")
	require.NoError(t, err)
	assert.Equal(t, []string{p.ID}, srv.ProjectIDs())

	require.NoError(t, p.Unarchive(ctx))
	require.NoError(t, p.Delete(ctx))
	assert.Empty(t, srv.ProjectIDs())

	ok, err := p.Exists(ctx)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestIngestFlow(t *testing.T) {
	srv, c := setup(t)
	ctx := context.Background()

	p, err := c.CreateProject(ctx, "Orders", "")
	require.NoError(t, err)

	err = p.UploadFile(ctx, "log.csv", strings.NewReader("a,b\n"))
	var apiErr *client.APIError
	require.ErrorAs(t, err, &apiErr, "upload before mapping must fail")
	assert.Equal(t, http.StatusBadRequest, apiErr.StatusCode)

	exists, err := p.ColumnMappingExists(ctx)
	require.NoError(t, err)
	assert.False(t, exists)

	m, err := client.NewColumnMapping([]client.Column{
		{Name: "Case", Index: 0, Type: client.ColumnCaseID},
		{Name: "Activity", Index: 1, Type: client.ColumnTaskName},
		{Name: "Start", Index: 2, Type: client.ColumnTime, TimeFormat: "yyyy-MM-dd HH:mm"},
		{Name: "Cost", Index: 3, Type: client.ColumnMetric, Aggregation: client.AggSum, Unit: "EUR"},
	})
	require.NoError(t, err)
	require.NoError(t, p.AddColumnMapping(ctx, client.NewFileStructure(client.FileCSV), m))

	got, err := p.ColumnMapping(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, got.CaseID.Index)
	assert.Equal(t, 1, got.TaskName.Index)
	require.Len(t, got.Times, 1)
	assert.Equal(t, "yyyy-MM-dd HH:mm", got.Times[0].TimeFormat)
	require.Len(t, got.Metrics, 1)
	assert.Equal(t, "Cost", got.Metrics[0].Name)
	assert.Equal(t, client.AggSum, got.Metrics[0].Aggregation)

	require.NoError(t, p.UploadFile(ctx, "log.csv", strings.NewReader("case,activity,start,cost\n1,A,2024-01-01 10:00,3\n")))
	assert.Equal(t, []string{"log.csv"}, srv.Files(p.ID))

	page, err := p.FilesMetadata(ctx, 0, 10)
	require.NoError(t, err)
	assert.Equal(t, 1, page.Total)
	require.Len(t, page.Files, 1)

	fileID := page.Files[0].String("id")
	meta, err := p.FileMetadata(ctx, fileID)
	require.NoError(t, err)
	assert.Equal(t, "log.csv", meta.String("name"))

	status, err := p.FileIngestionStatus(ctx, fileID)
	require.NoError(t, err)
	assert.Equal(t, "SUCCESS", status.String("status"))

	require.NoError(t, p.Reset(ctx))
	exists, err = p.ColumnMappingExists(ctx)
	require.NoError(t, err)
	assert.False(t, exists)
}

func TestPredictionLifecycle(t *testing.T) {
	id := uuid.NewString()
	fixture := minetest.NewSampleProject(id)
	fixture.PredictionPolls = 2
	_, c := setup(t, fixture)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	p := c.Project(id)

	possibility, err := p.PredictionPossibility(ctx)
	require.NoError(t, err)
	assert.Equal(t, client.CanLaunchPrediction, possibility)

	pid, err := p.LaunchPrediction(ctx, "case-1")
	require.NoError(t, err)

	ws, err := p.WaitPrediction(ctx, pid, 10*time.Millisecond)
	require.NoError(t, err)
	assert.Equal(t, client.PredictionSuccess, ws.Status)
	assert.Equal(t, id, ws.ProjectID.String())
	assert.NotNil(t, ws.EndTime)

	second, err := p.LaunchPrediction(ctx)
	require.NoError(t, err)
	require.NoError(t, p.CancelPrediction(ctx, second))
	ws, err = p.PredictionStatus(ctx, second)
	require.NoError(t, err)
	assert.Equal(t, client.PredictionCanceled, ws.Status)
}

func TestPredictionPossibilityWithoutData(t *testing.T) {
	_, c := setup(t)
	ctx := context.Background()

	p, err := c.CreateProject(ctx, "Empty", "")
	require.NoError(t, err)

	possibility, err := p.PredictionPossibility(ctx)
	require.NoError(t, err)
	assert.Equal(t, client.NoDataInProject, possibility)

	_, err = p.LaunchPrediction(ctx)
	assert.Error(t, err)

	possibility, err = c.Project("missing").PredictionPossibility(ctx)
	require.NoError(t, err)
	assert.Equal(t, client.ProjectNotFound, possibility)
}

func TestTraining(t *testing.T) {
	id := uuid.NewString()
	srv, c := setup(t, minetest.NewSampleProject(id))
	ctx := context.Background()
	p := c.Project(id)

	running, err := p.TrainStatus(ctx)
	require.NoError(t, err)
	assert.False(t, running)

	require.NoError(t, p.LaunchTrain(ctx))
	assert.True(t, srv.Training(id))

	running, err = p.TrainStatus(ctx)
	require.NoError(t, err)
	assert.True(t, running)

	require.NoError(t, p.StopTrain(ctx))
	assert.False(t, srv.Training(id))
}

func TestVariantsAndCases(t *testing.T) {
	id := uuid.NewString()
	_, c := setup(t, minetest.NewSampleProject(id))
	ctx := context.Background()
	p := c.Project(id)

	variants, err := p.Variants(ctx, 0, 10, "approve > approve")
	require.NoError(t, err)
	assert.EqualValues(t, 1, variants["total"])

	cases, err := p.CompletedCases(ctx, 0, 1, "")
	require.NoError(t, err)
	assert.EqualValues(t, 2, cases["total"])
	assert.Len(t, cases["cases"], 1)

	lookups, err := p.Lookups(ctx)
	require.NoError(t, err)
	assert.JSONEq(t, `[]`, string(lookups))
}
