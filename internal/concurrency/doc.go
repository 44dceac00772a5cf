// Copyright (c) 2025
// Author: momentics <momentics@gmail.com>

// Package concurrency provides the single-worker serial executor backing
// the completion tracker's execution model.
package concurrency
