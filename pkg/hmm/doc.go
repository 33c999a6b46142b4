/*
Package hmm fits categorical hidden Markov models to integer observation
sequences with the Baum-Welch algorithm and samples new observations from
them.

Observations are integer codes in [0, M); callers map their own symbols onto
codes, typically with markov.Encoder. A fitted Model is immutable; sampling
state lives in a Sampler, so several samplers can draw from one model.
*/
package hmm
