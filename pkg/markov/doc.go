/*
Package markov builds order-k Markov chains over arbitrary symbol sequences
and samples new sequences from them.

A Chain maps every observed context (a window of k consecutive symbols) to
the weighted set of symbols that followed it. Generation starts from a
uniformly chosen context, draws successors in proportion to how often they
were observed, and teleports to another known context whenever the current
window was never seen during training. Generation stops after a fixed number
of symbols or once the accumulated duration of the emitted symbols reaches a
target.

The package also provides Encoder, the dense first-occurrence integer coding
of a symbol alphabet used by models that work on integer observations.
*/
package markov
