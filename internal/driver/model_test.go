package driver

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	domainerrors "posyandu-logistics/internal/errors"
)

func TestSetManualStatus(t *testing.T) {
	tests := []struct {
		name     string
		from     Status
		to       Status
		wantCode string
		forced   bool
	}{
		{"available to off duty", StatusAvailable, StatusOffDuty, "", false},
		{"off duty to available", StatusOffDuty, StatusAvailable, "", false},
		{"forced release", StatusOnDelivery, StatusAvailable, "", true},
		{"manual on delivery", StatusAvailable, StatusOnDelivery, domainerrors.ErrValidation, false},
		{"on delivery to off duty", StatusOnDelivery, StatusOffDuty, domainerrors.ErrInvalidTransition, false},
		{"unknown status", StatusAvailable, Status("SLEEPING"), domainerrors.ErrValidation, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := New(uuid.New(), "Budi", "0812", "B 1234 XY")
			d.Status = tt.from
			if tt.from == StatusOnDelivery {
				sid := uuid.New()
				d.CurrentShipmentID = &sid
			}

			forced, err := d.SetManualStatus(tt.to)
			if tt.wantCode != "" {
				require.Error(t, err)
				assert.True(t, domainerrors.HasCode(err, tt.wantCode), err.Error())
				assert.Equal(t, tt.from, d.Status)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.forced, forced)
			assert.Equal(t, tt.to, d.Status)
			assert.Nil(t, d.CurrentShipmentID)
		})
	}
}

func TestCheckAssignable(t *testing.T) {
	d := New(uuid.New(), "Siti", "0813", "")
	assert.NoError(t, d.CheckAssignable())

	d.Status = StatusOnDelivery
	err := d.CheckAssignable()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "driver Siti is currently ON_DELIVERY")

	d.Status = StatusOffDuty
	err = d.CheckAssignable()
	require.Error(t, err)
	assert.True(t, domainerrors.HasCode(err, domainerrors.ErrConflict))
}
