// Copyright 2025 DeskFlow
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package trace

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"deskflow/platform/shared/logger"
)

func TestPGSinkExport(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer func() { _ = db.Close() }()

	sink := NewPGSinkFromDB(db, logger.New("test"))

	now := time.Now()
	spans := []Span{
		{SpanID: "s1", TraceID: "t1", Name: "ask", Status: StatusOK,
			StartTime: now, EndTime: now, Input: "hello", Output: "world",
			Attributes: map[string]string{"mode": "routed"}},
		{SpanID: "s2", TraceID: "t1", ParentID: "s1", Name: "route", Status: StatusOK,
			StartTime: now, EndTime: now},
	}

	mock.ExpectBegin()
	prep := mock.ExpectPrepare("INSERT INTO trace_spans")
	prep.ExpectExec().
		WithArgs("s1", "t1", nil, "ask", now, now, "hello", "world", StatusOK, []byte(`{"mode":"routed"}`)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	prep.ExpectExec().
		WithArgs("s2", "t1", "s1", "route", now, now, nil, nil, StatusOK, nil).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	require.NoError(t, sink.Export(context.Background(), spans))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPGSinkRollsBackOnInsertError(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer func() { _ = db.Close() }()

	sink := NewPGSinkFromDB(db, logger.New("test"))
	now := time.Now()

	mock.ExpectBegin()
	prep := mock.ExpectPrepare("INSERT INTO trace_spans")
	prep.ExpectExec().WillReturnError(errors.New("disk full"))
	mock.ExpectRollback()

	err = sink.Export(context.Background(), []Span{
		{SpanID: "s1", TraceID: "t1", Name: "ask", Status: StatusOK, StartTime: now, EndTime: now},
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "disk full")
	assert.NoError(t, mock.ExpectationsWereMet())
}
