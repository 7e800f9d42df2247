package resolver

import (
	"github.com/ajitpratap0/connpool/pkg/connector/core"
	"github.com/ajitpratap0/connpool/pkg/poolerrors"
)

// NegotiateTransactionSupport returns the effective transaction support of
// a pool. A level declared by the factory at runtime must not exceed what
// its adapter supports. Without a declaration the configured level is used.
func NegotiateTransactionSupport(adapter core.Adapter, f core.Factory, desc *core.PoolDescriptor) (core.TransactionSupportLevel, error) {
	declared, ok := f.TransactionSupport()
	if !ok {
		return desc.TransactionSupport, nil
	}

	if !isTxSupportSane(declared, adapter.TransactionSupport()) {
		return 0, poolerrors.New(poolerrors.ErrorTypeTransactionSupportMismatch,
			"factory transaction support exceeds what the adapter supports").
			WithPool(desc.Identity).
			WithDetail("declared", declared.String()).
			WithDetail("adapter", adapter.ModuleName()).
			WithDetail("adapter_max", adapter.TransactionSupport().String())
	}
	return declared, nil
}

func isTxSupportSane(declared, adapterMax core.TransactionSupportLevel) bool {
	if declared < core.NoTransaction || declared > core.XATransaction {
		return false
	}
	return declared <= adapterMax
}
