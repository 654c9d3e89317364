package step

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDefaultPolicy_TreatsShipmentAndNotificationAsNonUndoable(t *testing.T) {
	p := DefaultPolicy()

	assert.True(t, p.IsNonUndoableAdd("CREATE_SHIPMENT"))
	assert.True(t, p.IsNonUndoableAdd("SEND_NOTIFICATION"))
	assert.False(t, p.IsNonUndoableAdd("RESERVE_INVENTORY"))

	assert.False(t, p.RequiresCompensation("CREATE_SHIPMENT"))
	assert.True(t, p.RequiresCompensation("RESERVE_INVENTORY"), "anything not in NonUndoable defaults to compensable when Compensable is unset")
}

func TestStaticPolicy_CompensableAllowlist(t *testing.T) {
	p := StaticPolicy{
		Compensable: map[Action]bool{"RESERVE_INVENTORY": true},
	}

	assert.True(t, p.RequiresCompensation("RESERVE_INVENTORY"))
	assert.False(t, p.RequiresCompensation("CHARGE_PAYMENT"), "once Compensable is set, actions absent from it are not compensated")
}
