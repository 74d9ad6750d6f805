// Copyright 2019 The Mangos Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use file except in compliance with the License.
// You may obtain a copy of the license at
//
//    http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package test collects small assertion helpers shared by every pattern
// package's tests, keeping individual test files free of repeated
// if-err-t.Fatal boilerplate.
package test

import "testing"

// MustSucceed fails the test immediately if err is non-nil.
func MustSucceed(t *testing.T, err error) {
	t.Helper()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

// MustFail fails the test if err is nil.
func MustFail(t *testing.T, err error) {
	t.Helper()
	if err == nil {
		t.Fatalf("expected an error, got none")
	}
}

// MustBeError fails the test unless err matches want.
func MustBeError(t *testing.T, err error, want error) {
	t.Helper()
	if err != want {
		t.Fatalf("got error %v, want %v", err, want)
	}
}

// MustBeTrue fails the test unless b is true.
func MustBeTrue(t *testing.T, b bool) {
	t.Helper()
	if !b {
		t.Fatalf("expected true, got false")
	}
}

// MustBeFalse fails the test unless b is false.
func MustBeFalse(t *testing.T, b bool) {
	t.Helper()
	if b {
		t.Fatalf("expected false, got true")
	}
}

// MustNotBeNil fails the test if v is nil.
func MustNotBeNil(t *testing.T, v interface{}) {
	t.Helper()
	if v == nil {
		t.Fatalf("expected non-nil value")
	}
}
