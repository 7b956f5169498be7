package deposit_models

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jmkim/billim/models/shared_models"
)

func TestNewDepositHistory(t *testing.T) {
	reservationID := uuid.New()
	payerID := uuid.New()

	t.Run("StartsPending", func(t *testing.T) {
		dh, err := NewDepositHistory(reservationID, payerID, 10000)
		require.NoError(t, err)

		assert.NotEqual(t, uuid.Nil, dh.ID)
		assert.Equal(t, reservationID, dh.ReservationID)
		assert.Equal(t, payerID, dh.PayerID)
		assert.Equal(t, int64(10000), dh.Amount)
		assert.Equal(t, shared_models.DepositStatusPending, dh.Status)
		assert.Equal(t, shared_models.ReturnReasonNone, dh.ReturnReason)
	})

	t.Run("NegativeAmount", func(t *testing.T) {
		_, err := NewDepositHistory(reservationID, payerID, -1)
		assert.Error(t, err)
	})

	t.Run("ZeroAmountAllowed", func(t *testing.T) {
		dh, err := NewDepositHistory(reservationID, payerID, 0)
		require.NoError(t, err)
		assert.Equal(t, int64(0), dh.Amount)
	})
}
