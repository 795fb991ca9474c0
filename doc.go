// Copyright ©2019 The Gonum Authors. All rights reserved.
// Copyright ©2024 The GUDA Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package levmarq fits a parametric model to large batches of short
// waveforms with the Levenberg-Marquardt method, one independent damped
// Gauss-Newton solve per waveform.
//
// A chunk of events is dispatched as a grid of blocks, one block per event.
// The workers of a block cooperate on the small dense linear algebra of each
// iteration (matrix products, reductions and a Gauss-Jordan inversion) and
// meet at barriers between phases, while blocks run independently on a
// persistent worker pool:
//
//	d, err := levmarq.NewDispatcher(levmarq.DefaultConfig(), strategy)
//	if err != nil {
//		return err
//	}
//	defer d.Close()
//	results := make([]levmarq.FitResult, chunk.Len())
//	err = d.Fit(ctx, chunk, results)
//
// What is fitted is supplied by a Strategy: parameter count, model,
// derivative, window selection and initial guess. Package fitfunc provides
// polynomial strategies, package waveform the sample sources and package
// pipeline the buffered reader, fit and report stages.
package levmarq
