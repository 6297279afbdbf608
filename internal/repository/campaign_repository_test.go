package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sendhorn/internal/models"
)

var campaignRows = []string{
	"id", "campaign_ref", "name", "template_name", "template_language",
	"recipient_list_id", "created_by", "status", "total", "sent_count",
	"failed_count", "pending_count", "recipients", "scheduled_at",
	"started_at", "completed_at", "created_at", "updated_at",
}

func newCampaignTestRepo(t *testing.T) (CampaignRepository, sqlmock.Sqlmock, *sql.DB) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return NewCampaignRepository(db), mock, db
}

func addCampaignRow(rows *sqlmock.Rows, id int, status string, snapshot []models.RecipientSnapshot) *sqlmock.Rows {
	now := time.Now()
	data, _ := json.Marshal(snapshot)
	if snapshot == nil {
		data = []byte("[]")
	}
	return rows.AddRow(
		id, "cmp-test", "Test Campaign", "promo_september", "en",
		nil, "tester", status, len(snapshot), 0,
		0, len(snapshot), data, nil,
		nil, nil, now, now,
	)
}

func TestCampaignCreate_ReturnsGeneratedFields(t *testing.T) {
	repo, mock, _ := newCampaignTestRepo(t)

	mock.ExpectQuery("INSERT INTO campaigns").
		WithArgs(
			"cmp-new", "Promo", "promo_september", "en",
			nil, "tester", models.CampaignStatusDraft,
			sqlmock.AnyArg(), nil,
		).
		WillReturnRows(sqlmock.NewRows([]string{"id", "created_at", "updated_at"}).
			AddRow(7, time.Now(), time.Now()))

	campaign := &models.Campaign{
		CampaignRef:      "cmp-new",
		Name:             "Promo",
		TemplateName:     "promo_september",
		TemplateLanguage: "en",
		CreatedBy:        "tester",
		Status:           models.CampaignStatusDraft,
	}

	err := repo.Create(context.Background(), campaign)
	require.NoError(t, err)
	assert.Equal(t, 7, campaign.ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCampaignGetByID_UnmarshalsSnapshot(t *testing.T) {
	repo, mock, _ := newCampaignTestRepo(t)

	snapshot := []models.RecipientSnapshot{
		{RecipientID: 1, Phone: "254700000001", Name: "Amina Odhiambo", Status: models.MessageStatusQueued},
	}
	mock.ExpectQuery("SELECT (.+) FROM campaigns WHERE id = \\$1").
		WithArgs(5).
		WillReturnRows(addCampaignRow(sqlmock.NewRows(campaignRows), 5, "sending", snapshot))

	campaign, err := repo.GetByID(context.Background(), 5)
	require.NoError(t, err)

	assert.Equal(t, models.CampaignStatusSending, campaign.Status)
	require.Len(t, campaign.Recipients, 1)
	assert.Equal(t, "Amina Odhiambo", campaign.Recipients[0].Name)
}

func TestCampaignList_FiltersByStatus(t *testing.T) {
	repo, mock, _ := newCampaignTestRepo(t)

	status := models.CampaignStatusSending
	mock.ExpectQuery("SELECT (.+) FROM campaigns WHERE 1=1 AND status = \\$1").
		WithArgs(status, 20, 0).
		WillReturnRows(addCampaignRow(sqlmock.NewRows(campaignRows), 1, "sending", nil))
	mock.ExpectQuery("SELECT COUNT\\(\\*\\) FROM campaigns WHERE 1=1 AND status = \\$1").
		WithArgs(status).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(1))

	campaigns, total, err := repo.List(context.Background(), CampaignFilters{Page: 1, PageSize: 20, Status: &status})
	require.NoError(t, err)
	assert.Len(t, campaigns, 1)
	assert.Equal(t, 1, total)
	assert.NoError(t, mock.ExpectationsWereMet())
}

// MarkSending only transitions startable campaigns; the row count tells the
// caller whether it won the transition.
func TestMarkSending_ConditionalTransition(t *testing.T) {
	repo, mock, db := newCampaignTestRepo(t)

	startedAt := time.Now()
	mock.ExpectExec("UPDATE campaigns").
		WithArgs(1, startedAt).
		WillReturnResult(sqlmock.NewResult(0, 1))

	ok, err := repo.MarkSending(context.Background(), db, 1, startedAt)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestMarkSending_LosesRace(t *testing.T) {
	repo, mock, db := newCampaignTestRepo(t)

	mock.ExpectExec("UPDATE campaigns").
		WillReturnResult(sqlmock.NewResult(0, 0))

	ok, err := repo.MarkSending(context.Background(), db, 1, time.Now())
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestMarkCompleted_OnlyFromSending(t *testing.T) {
	repo, mock, _ := newCampaignTestRepo(t)

	mock.ExpectExec("UPDATE campaigns").
		WithArgs(1, sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 0))

	ok, err := repo.MarkCompleted(context.Background(), 1, time.Now())
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestUpdateStatus_NeverLeavesCompleted(t *testing.T) {
	repo, mock, _ := newCampaignTestRepo(t)

	mock.ExpectExec("UPDATE campaigns").
		WithArgs(models.CampaignStatusCancelled, 1).
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := repo.UpdateStatus(context.Background(), 1, models.CampaignStatusCancelled)
	require.Error(t, err)
}

func TestAddRecipients_StoresSelection(t *testing.T) {
	repo, mock, _ := newCampaignTestRepo(t)

	mock.ExpectExec("INSERT INTO campaign_recipients").
		WithArgs(1, pq.Array([]int{3, 1, 2})).
		WillReturnResult(sqlmock.NewResult(0, 3))

	err := repo.AddRecipients(context.Background(), 1, []int{3, 1, 2})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGetRecipientIDs(t *testing.T) {
	repo, mock, _ := newCampaignTestRepo(t)

	mock.ExpectQuery("SELECT recipient_id FROM campaign_recipients").
		WithArgs(1).
		WillReturnRows(sqlmock.NewRows([]string{"recipient_id"}).AddRow(1).AddRow(2).AddRow(3))

	ids, err := repo.GetRecipientIDs(context.Background(), 1)
	require.NoError(t, err)
	assert.Equal(t, []int{1, 2, 3}, ids)
}
