// Package engine implements the lane-dodging simulation core.
//
// An Engine owns the agent lane, the active obstacle set and the step
// counter, and is advanced one tick at a time by Step. It performs no I/O
// and holds no locks: callers that share an Engine across goroutines must
// synchronize externally.
//
// Usage:
//
//	eng, err := engine.New(engine.DefaultConfig(3), engine.WithSeed(42))
//	if err != nil {
//	    return err
//	}
//	obs := eng.Reset()
//	for {
//	    res, err := eng.Step(engine.Hold)
//	    if err != nil {
//	        return err
//	    }
//	    if res.Done {
//	        break
//	    }
//	}
package engine
