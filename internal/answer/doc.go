// Package answer picks answers from the local decision pool.
//
// Generator samples the stored decisions uniformly and falls back to a fixed
// answer when the pool is empty. Seeder fills the pool with preset answers on
// first launch, exactly once per database. ShakeCounter tracks how many times
// the ball was shaken.
package answer
