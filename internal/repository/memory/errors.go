package memory

import "errors"

var errLockOutsideTx = errors.New("ledger lock requires a transaction")
