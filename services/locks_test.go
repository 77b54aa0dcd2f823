package services

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func TestKeyedMutexSerializesSameKey(t *testing.T) {
	k := NewKeyedMutex()
	var inside, maxInside int32
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			unlock := k.Lock("u1")
			defer unlock()
			n := atomic.AddInt32(&inside, 1)
			for {
				m := atomic.LoadInt32(&maxInside)
				if n <= m || atomic.CompareAndSwapInt32(&maxInside, m, n) {
					break
				}
			}
			time.Sleep(time.Millisecond)
			atomic.AddInt32(&inside, -1)
		}()
	}
	wg.Wait()
	assert.Equal(t, int32(1), maxInside)
	assert.Zero(t, k.size())
}

func TestKeyedMutexIndependentKeys(t *testing.T) {
	k := NewKeyedMutex()
	unlockA := k.Lock("a")
	done := make(chan struct{})
	go func() {
		unlockB := k.Lock("b")
		unlockB()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("lock on b blocked behind a")
	}
	assert.Equal(t, 1, k.size())
	unlockA()
	assert.Zero(t, k.size())
}

// recordRawSQL captures every raw statement issued through db.
func recordRawSQL(t *testing.T, db *gorm.DB) *[]string {
	t.Helper()
	var stmts []string
	require.NoError(t, db.Callback().Raw().After("gorm:raw").Register("test:record_sql", func(d *gorm.DB) {
		stmts = append(stmts, db.Dialector.Explain(d.Statement.SQL.String(), d.Statement.Vars...))
	}))
	return &stmts
}

func TestLockEventTxOnPostgresLocksUserThenPeriod(t *testing.T) {
	db, err := gorm.Open(postgres.New(postgres.Config{DSN: "host=localhost user=journal dbname=journal sslmode=disable"}), &gorm.Config{
		DryRun:               true,
		DisableAutomaticPing: true,
		Logger:               logger.Discard,
	})
	require.NoError(t, err)
	stmts := recordRawSQL(t, db)

	require.NoError(t, lockEventTx(db, "u1", "2026-10"))
	assert.Equal(t, []string{
		"SELECT pg_advisory_xact_lock(1, hashtext('u1'))",
		"SELECT pg_advisory_xact_lock(2, hashtext('2026-10'))",
	}, *stmts)

	*stmts = nil
	require.NoError(t, lockEventTx(db, "u1", ""))
	assert.Equal(t, []string{"SELECT pg_advisory_xact_lock(1, hashtext('u1'))"}, *stmts)
}

func TestLockEventTxIsNoopOnSqlite(t *testing.T) {
	db := newTestDB(t)
	stmts := recordRawSQL(t, db)
	require.NoError(t, lockEventTx(db, "u1", "2026-10"))
	assert.Empty(t, *stmts)
}
