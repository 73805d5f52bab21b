package service

import (
	"errors"
	"fmt"
	"testing"

	"github.com/go-sql-driver/mysql"
	"github.com/stretchr/testify/assert"

	"github.com/iliyamo/venue-booking/internal/repository"
)

func TestBookingErrorMatchesByKind(t *testing.T) {
	err := fmt.Errorf("create order: %w", unavailable([]uint64{4, 9}, "seats are not available"))

	assert.True(t, errors.Is(err, ErrSeatsUnavailable))
	assert.False(t, errors.Is(err, ErrSeatsContended))
	assert.Equal(t, KindSeatsUnavailable, KindOf(err))

	var be *BookingError
	assert.True(t, errors.As(err, &be))
	assert.Equal(t, []uint64{4, 9}, be.SeatIDs)
	assert.Equal(t, "seats unavailable: seats are not available (seats [4 9])", be.Error())
}

func TestKindOf(t *testing.T) {
	assert.Equal(t, ErrorKind(""), KindOf(nil))
	assert.Equal(t, KindTransactionFailed, KindOf(errors.New("boom")))
	assert.Equal(t, KindForbidden, KindOf(ErrForbidden))
}

func TestTxError(t *testing.T) {
	nowait := &mysql.MySQLError{Number: 3572, Message: "NOWAIT is set"}
	contended := txError(errors.Join(repository.ErrSeatsContended, nowait))
	assert.Equal(t, KindSeatsContended, KindOf(contended))
	var me *mysql.MySQLError
	assert.True(t, errors.As(contended, &me))

	assert.Equal(t, KindNotFound, KindOf(txError(repository.ErrNotFound)))
	assert.Equal(t, KindTransactionFailed, KindOf(txError(errors.New("connection reset"))))

	forbidden := newError(KindForbidden, "", nil)
	assert.Same(t, forbidden, txError(forbidden))
	assert.NoError(t, txError(nil))
}
