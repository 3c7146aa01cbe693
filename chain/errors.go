package chain

import "trinci-core/errs"

func malformed(ctx string) error { return errs.New(errs.Malformed, ctx) }

func brokenIntegrity(ctx string) error { return errs.New(errs.BrokenIntegrity, ctx) }
